package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/bqhnsw"
	"github.com/hupe1980/bqhnsw/blobstore"
	"github.com/hupe1980/bqhnsw/blobstore/minio"
	"github.com/hupe1980/bqhnsw/blobstore/s3"
	"github.com/spf13/cobra"
)

var (
	blobDir       string
	s3Bucket      string
	s3Prefix      string
	s3Region      string
	minioEndpoint string
	minioBucket   string
	minioSecure   bool
	codecName     string
	archivePrefix string
	ddbTable      string
)

var publishCmd = &cobra.Command{
	Use:   "publish <segment>",
	Short: "Upload a sealed segment to a blob store",
	Long: `Upload a sealed segment to a blob store. Data files go first and the
metadata last.

Examples:
  bqhnsw publish --dir ./idx --blob-dir /mnt/archive seg-0001
  bqhnsw publish --dir ./idx --s3-bucket my-bucket --s3-prefix segments/ --codec zstd seg-0001
  bqhnsw publish --dir ./idx --s3-bucket my-bucket --ddb-table bqhnsw-segments seg-0001`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <segment>",
	Short: "Download a published segment into the index directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(fetchCmd)

	for _, c := range []*cobra.Command{publishCmd, fetchCmd} {
		c.Flags().StringVar(&blobDir, "blob-dir", "", "Local directory blob store")
		c.Flags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket")
		c.Flags().StringVar(&s3Prefix, "s3-prefix", "", "S3 key prefix")
		c.Flags().StringVar(&s3Region, "s3-region", "", "S3 region (default: from the AWS config)")
		c.Flags().StringVar(&minioEndpoint, "minio-endpoint", "", "MinIO endpoint (credentials from MINIO_ACCESS_KEY and MINIO_SECRET_KEY)")
		c.Flags().StringVar(&minioBucket, "minio-bucket", "", "MinIO bucket")
		c.Flags().BoolVar(&minioSecure, "minio-secure", true, "Use HTTPS for MinIO")
		c.Flags().StringVar(&codecName, "codec", "none", "Blob compression: none, lz4 or zstd")
		c.Flags().StringVar(&archivePrefix, "prefix", "", "Archive prefix inside the blob store")
		c.Flags().StringVar(&ddbTable, "ddb-table", "", "DynamoDB table for the publish-once registry (requires --s3-bucket)")
	}
}

// openBlobStore builds the blob store selected by the flags.
func openBlobStore(ctx context.Context) (blobstore.BlobStore, error) {
	codec, err := blobstore.ParseCodec(codecName)
	if err != nil {
		return nil, err
	}

	var bs blobstore.BlobStore
	switch {
	case blobDir != "":
		bs, err = blobstore.NewLocalStore(blobDir)
	case s3Bucket != "":
		bs, err = s3.New(ctx, s3Bucket, s3.WithPrefix(s3Prefix), s3.WithRegion(s3Region))
	case minioEndpoint != "":
		bs, err = minio.New(minioEndpoint, os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), minioBucket, s3Prefix, minioSecure)
	default:
		return nil, errors.New("no blob store: set --blob-dir, --s3-bucket or --minio-endpoint")
	}
	if err != nil {
		return nil, err
	}

	if codec != blobstore.CodecNone {
		bs = blobstore.Compressed(bs, codec)
	}
	return bs, nil
}

func archiveOptions(ctx context.Context) ([]bqhnsw.ArchiveOption, error) {
	opts := []bqhnsw.ArchiveOption{bqhnsw.WithArchivePrefix(archivePrefix)}
	if ddbTable == "" {
		return opts, nil
	}
	if s3Bucket == "" {
		return nil, errors.New("--ddb-table requires --s3-bucket")
	}
	client, err := s3.NewDynamoDBClient(ctx, s3Region)
	if err != nil {
		return nil, err
	}
	namespace := fmt.Sprintf("s3://%s/%s", s3Bucket, s3Prefix)
	return append(opts, bqhnsw.WithRegistry(s3.NewDDBRegistry(client, ddbTable, namespace))), nil
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	f, err := newFormat(cmd)
	if err != nil {
		return err
	}
	dir, err := openDir()
	if err != nil {
		return err
	}
	bs, err := openBlobStore(ctx)
	if err != nil {
		return err
	}
	opts, err := archiveOptions(ctx)
	if err != nil {
		return err
	}

	stats, err := f.Publish(ctx, dir, args[0], bs, opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %s (%s): %d files, %d bytes, %s\n",
		stats.Segment, stats.ID, stats.Files, stats.Bytes, stats.Duration)
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	f, err := newFormat(cmd)
	if err != nil {
		return err
	}
	dir, err := openDir()
	if err != nil {
		return err
	}
	bs, err := openBlobStore(ctx)
	if err != nil {
		return err
	}
	opts, err := archiveOptions(ctx)
	if err != nil {
		return err
	}

	stats, err := f.Fetch(ctx, bs, args[0], dir, opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "fetched %s (%s): %d files, %d bytes, %s\n",
		stats.Segment, stats.ID, stats.Files, stats.Bytes, stats.Duration)
	return nil
}
