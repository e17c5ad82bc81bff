/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package archive

import (
	"context"
	"errors"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/sirupsen/logrus"

	"github.com/apnabank/corebank/config"
)

// Archiver stores a document and returns where it can be fetched from.
type Archiver interface {
	Archive(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// S3Archiver uploads documents to one bucket under an optional key prefix.
type S3Archiver struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
}

// NewS3Archiver builds an archiver from the archive section of the configuration.
// A custom endpoint switches the client to path-style addressing so that
// S3-compatible stores work.
func NewS3Archiver(cnf config.ArchiveConfig) (*S3Archiver, error) {
	if cnf.S3BucketName == "" {
		return nil, errors.New("archive bucket is not configured")
	}

	awsCfg := aws.NewConfig().WithRegion(cnf.S3Region)
	if cnf.AwsAccessKeyId != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cnf.AwsAccessKeyId, cnf.AwsSecretAccessKey, ""))
	}
	if cnf.S3Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cnf.S3Endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	return NewS3ArchiverWithUploader(s3manager.NewUploader(sess), cnf.S3BucketName, cnf.Prefix), nil
}

func NewS3ArchiverWithUploader(uploader s3manageriface.UploaderAPI, bucket, prefix string) *S3Archiver {
	return &S3Archiver{uploader: uploader, bucket: bucket, prefix: prefix}
}

// Key joins the configured prefix and name into an object key.
func (a *S3Archiver) Key(name string) string {
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

func (a *S3Archiver) Archive(ctx context.Context, name string, body io.Reader, contentType string) (string, error) {
	key := a.Key(name)
	out, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{"bucket": a.bucket, "key": key}).Info("document archived")
	return out.Location, nil
}
