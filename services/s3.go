package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"

	"filealchemy/config"
	"filealchemy/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
)

// S3Service fetches queued input files and stores converted outputs.
type S3Service struct {
	session    *session.Session
	bucket     string
	downloader *s3manager.Downloader
	uploader   *s3manager.Uploader
}

func NewS3Service(cfg *config.Config) *S3Service {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.S3Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWSS3AccessKey,
			cfg.AWSS3SecretKey,
			"",
		),
	}

	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
	}

	if cfg.S3UsePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess := session.Must(session.NewSession(awsCfg))

	return &S3Service{
		session:    sess,
		bucket:     cfg.S3Bucket,
		downloader: s3manager.NewDownloader(sess),
		uploader:   s3manager.NewUploader(sess),
	}
}

// Fetch downloads key into dir and describes it as an input file. The local
// copy keeps the object's base name so the conversion service sees it.
func (s *S3Service) Fetch(ctx context.Context, key string, dir string) (models.InputFile, error) {
	name := path.Base(key)
	localDir := filepath.Join(dir, uuid.NewString())
	if err := os.MkdirAll(localDir, 0755); err != nil {
		return models.InputFile{}, fmt.Errorf("failed to create work dir: %w", err)
	}
	localPath := filepath.Join(localDir, name)

	file, err := os.Create(localPath)
	if err != nil {
		return models.InputFile{}, fmt.Errorf("failed to create local file: %w", err)
	}
	defer file.Close()

	size, err := s.downloader.DownloadWithContext(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return models.InputFile{}, fmt.Errorf("failed to download from S3: %w", err)
	}

	return models.InputFile{
		Name:     name,
		Size:     size,
		MIMEType: mime.TypeByExtension(filepath.Ext(name)),
		Path:     localPath,
	}, nil
}

func (s *S3Service) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// Cleanup removes a fetched file together with its per-fetch directory.
func (s *S3Service) Cleanup(f models.InputFile) error {
	if f.Path == "" {
		return nil
	}
	return os.RemoveAll(filepath.Dir(f.Path))
}
