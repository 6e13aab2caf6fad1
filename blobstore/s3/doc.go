// Package s3 provides an S3 implementation of the blobstore.BlobStore and
// blobstore.Registry interfaces.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("segments/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	stats, err := format.Publish(ctx, dir, "seg-0001", store,
//	    bqhnsw.WithRegistry(s3.NewDDBRegistry(ddb, "bqhnsw-segments", "s3://my-bucket/segments")),
//	)
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads for large segment files
//   - Automatic pagination for listing
//   - Publish-once registries on DynamoDB or S3 conditional writes
package s3
