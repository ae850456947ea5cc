// Package storage keeps tenant files in S3-compatible object storage.
//
// # Overview
//
// Every object lives under a prefix derived from the owner filter of the
// request, so tenants never share keys:
//
//	users/<user_id>/<name>          // organization mode "none"
//	orgs/<organization_id>/<name>   // organization modes "single" and "multi"
//
// A filter that matches nothing (no user, or no organization in context) cannot
// produce a key, and neither can names that are empty, absolute, or contain
// "." or ".." segments.
//
// # Usage
//
//	store, err := storage.NewS3Store(ctx, storage.Config{
//		Bucket:       "tenantgate-files",
//		Region:       "us-east-1",
//		Endpoint:     "http://localhost:9000", // MinIO
//		AccessKey:    "minioadmin",
//		SecretKey:    "minioadmin",
//		UsePathStyle: true,
//	})
//
//	obj, err := store.Put(ctx, filter, "reports/q1.csv", body, "text/csv")
//	size, err := store.Delete(ctx, filter, "reports/q1.csv")
//
// Uploads carry a checksum-sha256 metadata entry. Put and Delete record spans
// with the global OpenTelemetry tracer.
//
// # Related Packages
//
//   - pkg/orgs: Owner filters
//   - pkg/billing: Storage quota accounting
package storage
