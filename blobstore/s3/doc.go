// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "snapshots/")
//	err = snapshot.Export(ctx, buf, store, "daily")
//
// # Features
//
//   - Range reads pinned to the ETag seen at Open
//   - Multipart streaming uploads through the SDK transfer manager
//   - CRC32C checksums on uploads (see UploadConfig)
//   - Conditional create via If-None-Match (blobstore.ConditionalPutter)
//   - Automatic pagination for listing
package s3
