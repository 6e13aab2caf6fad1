// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works with MinIO and other S3-compatible storage systems like Ceph,
// SeaweedFS and Garage, and needs no AWS dependencies.
//
// # Basic Usage
//
//	store, err := minioblob.New("localhost:9000", "minioadmin", "minioadmin",
//	    "my-bucket", "segments/", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	stats, err := format.Publish(ctx, dir, "seg-0001", store)
//
// An existing client can be wrapped directly:
//
//	client, _ := minio.New("s3.example.com:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
//	    Secure: true,
//	})
//	store := minioblob.NewStore(client, "my-bucket", "segments/",
//	    minioblob.WithPartSize(16<<20))
package minio
