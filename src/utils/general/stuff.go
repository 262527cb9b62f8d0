package general

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"cloud.google.com/go/storage"
)

func GetCurrentFilepath() string {
	_, filename, _, _ := runtime.Caller(1)
	return filepath.Dir(filename)
}

func GetCurrentDir() string {
	return filepath.Dir(GetCurrentFilepath())
}

// UploadFileToBucket copies a local file into a GCS bucket object.
func UploadFileToBucket(ctx context.Context, localPath, bucketName, objectPath string) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := client.Bucket(bucketName).Object(objectPath).NewWriter(ctx)
	if _, err := io.Copy(writer, file); err != nil {
		writer.Close()
		return err
	}

	return writer.Close()
}

func ItemInSlice[T comparable](slice []T, item T) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
