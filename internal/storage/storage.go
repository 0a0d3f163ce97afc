// Package storage は生成ファイルとアップロードファイルのオブジェクトストレージを提供する。
// 実装はGoogle Cloud Storageを使用する。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// ErrNotFound はオブジェクトが存在しないことを示す。
var ErrNotFound = errors.New("object not found")

// Object は読み出し中のオブジェクト。呼び出し側でBodyをCloseする。
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// ObjectStore はオブジェクトストレージ操作のインターフェース。
type ObjectStore interface {
	// Upload はrの内容をkeyに保存し、公開URLを返す。
	Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	// Open はkeyのオブジェクトを開く。存在しない場合はErrNotFoundを返す。
	Open(ctx context.Context, key string) (*Object, error)
	// Delete はkeyのオブジェクトを削除する。存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, key string) error
	// DeletePrefix はprefix配下のオブジェクトをすべて削除し、削除件数を返す。
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// PublicURL はkeyに対応する公開URLを返す。
	PublicURL(key string) string
	// KeyFromURL はこのバケットを指すURLからkeyを取り出す。
	KeyFromURL(rawURL string) (string, bool)
	// SignedURL は署名付きの一時ダウンロードURLを返す。署名鍵が未設定の場合は公開URLを返す。
	SignedURL(key string, ttl time.Duration) (string, error)
}

// Signer はV4署名URLの生成に使うサービスアカウント情報。
type Signer struct {
	Email      string
	PrivateKey string
}

// GCSStore はGoogle Cloud Storageを使用したObjectStore。
type GCSStore struct {
	client        *gcs.Client
	bucket        string
	publicBaseURL string
	signer        Signer
	logger        *slog.Logger
}

// NewGCSStore はGCSStoreを生成する。
// publicBaseURLが空の場合は https://storage.googleapis.com/<bucket> を使用する。
func NewGCSStore(client *gcs.Client, bucket, publicBaseURL string, signer Signer, logger *slog.Logger) *GCSStore {
	if publicBaseURL == "" {
		publicBaseURL = "https://storage.googleapis.com/" + bucket
	}
	return &GCSStore{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		signer:        signer,
		logger:        logger,
	}
}

// Upload はrの内容をkeyに保存し、公開URLを返す。
func (s *GCSStore) Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize object %s: %w", key, err)
	}

	s.logger.Info("object uploaded",
		slog.String("bucket", s.bucket),
		slog.String("key", key),
		slog.String("content_type", contentType),
	)
	return s.PublicURL(key), nil
}

// Open はkeyのオブジェクトを開く。
func (s *GCSStore) Open(ctx context.Context, key string) (*Object, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object %s: %w", key, err)
	}
	return &Object{Body: r, ContentType: r.Attrs.ContentType, Size: r.Attrs.Size}, nil
}

// Delete はkeyのオブジェクトを削除する。
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// DeletePrefix はprefix配下のオブジェクトを列挙して削除する。
// 列挙中に削除済みになったオブジェクトは無視する。
func (s *GCSStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, errors.New("prefix is required")
	}

	bucket := s.client.Bucket(s.bucket)
	it := bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	deleted := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return deleted, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		err = bucket.Object(attrs.Name).Delete(ctx)
		if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
			return deleted, fmt.Errorf("failed to delete object %s: %w", attrs.Name, err)
		}
		deleted++
	}

	s.logger.Info("objects deleted",
		slog.String("bucket", s.bucket),
		slog.String("prefix", prefix),
		slog.Int("count", deleted),
	)
	return deleted, nil
}

// PublicURL はkeyに対応する公開URLを返す。
func (s *GCSStore) PublicURL(key string) string {
	return s.publicBaseURL + "/" + escapeKey(key)
}

// KeyFromURL は公開URL、storage.googleapis.com形式のURL、gs://形式のいずれかからkeyを取り出す。
func (s *GCSStore) KeyFromURL(rawURL string) (string, bool) {
	return keyFromURL(rawURL, s.bucket, s.publicBaseURL)
}

// SignedURL はV4署名付きのGETダウンロードURLを返す。
func (s *GCSStore) SignedURL(key string, ttl time.Duration) (string, error) {
	if s.signer.Email == "" || s.signer.PrivateKey == "" {
		return s.PublicURL(key), nil
	}
	return signedDownloadURL(s.bucket, key, s.signer, ttl)
}

func signedDownloadURL(bucket, key string, signer Signer, ttl time.Duration) (string, error) {
	// 環境変数経由の鍵はリテラルの\nを含むため改行に戻す
	privateKey := strings.ReplaceAll(signer.PrivateKey, `\n`, "\n")

	u, err := gcs.SignedURL(bucket, key, &gcs.SignedURLOptions{
		Scheme:         gcs.SigningSchemeV4,
		Method:         "GET",
		Expires:        time.Now().Add(ttl),
		GoogleAccessID: signer.Email,
		PrivateKey:     []byte(privateKey),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign url for %s: %w", key, err)
	}
	return u, nil
}

// GeneratedImageKey はユーザーの生成画像を保存するkeyを返す。
func GeneratedImageKey(userID, ext string) string {
	return fmt.Sprintf("users/%s/images/%s%s", userID, uuid.NewString(), ext)
}

// UploadKey はユーザーがアップロードしたファイルを保存するkeyを返す。
// 元のファイル名は拡張子のみを引き継ぐ。
func UploadKey(userID, filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, `\`, "/"))))
	if len(ext) > 10 {
		ext = ""
	}
	return fmt.Sprintf("users/%s/uploads/%s%s", userID, uuid.NewString(), ext)
}

// UserPrefix はユーザーが読み出せるkeyの接頭辞を返す。
func UserPrefix(userID string) string {
	return "users/" + userID + "/"
}

// OwnedBy はkeyがユーザーの領域内にあるかを判定する。
// ".." を含むkeyは常に拒否する。
func OwnedBy(key, userID string) bool {
	if userID == "" || strings.Contains(key, "..") {
		return false
	}
	return strings.HasPrefix(key, UserPrefix(userID)) && len(key) > len(UserPrefix(userID))
}

// ExtensionForContentType は保存時に付与する拡張子を返す。
func ExtensionForContentType(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ""
	}
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func keyFromURL(rawURL, bucket, publicBaseURL string) (string, bool) {
	if rawURL == "" {
		return "", false
	}

	candidates := []string{
		publicBaseURL + "/",
		"https://storage.googleapis.com/" + bucket + "/",
		"https://" + bucket + ".storage.googleapis.com/",
		"gs://" + bucket + "/",
	}
	for _, prefix := range candidates {
		if !strings.HasPrefix(rawURL, prefix) {
			continue
		}
		rest := rawURL[len(prefix):]
		if i := strings.IndexAny(rest, "?#"); i >= 0 {
			rest = rest[:i]
		}
		key, err := url.PathUnescape(rest)
		if err != nil || key == "" {
			return "", false
		}
		return key, true
	}
	return "", false
}

// compile-time interface check
var _ ObjectStore = (*GCSStore)(nil)
