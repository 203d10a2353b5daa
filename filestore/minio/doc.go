// Package minio provides a filestore.Factory backed by MinIO or any
// S3-compatible object store.
//
// Spilling to object storage trades latency for capacity: it suits sets
// whose staged results outgrow local disk, or environments where workers
// are disposable and local scratch space is not guaranteed.
//
// # Usage
//
//	client, err := minio.New("play.min.io", &minio.Options{
//		Creds: credentials.NewStaticV4(accessKey, secretKey, ""),
//	})
//	if err != nil { ... }
//
//	factory := miniostore.NewFactory(ctx, client, "spill-bucket", "query-1234/")
//	set, err := spillset.New[int64](factory)
//
// Combine with filestore.NewCompressedFactory to cut transfer volume:
//
//	factory := filestore.NewCompressedFactory(
//		miniostore.NewFactory(ctx, client, bucket, prefix),
//		filestore.Zstd,
//	)
package minio
