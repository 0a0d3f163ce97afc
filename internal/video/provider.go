// Package video は画像から動画クリップを生成する外部ベンダー（Kling、Seedance）のクライアントと、
// タスク状態のポーリングを仲介するサービスを提供する。
// 生成の完了待ちはクライアント側のポーリングで行い、サーバーはオーケストレーションを持たない。
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hitoshi/shortsmith/internal/model"
)

// Provider は動画生成ベンダーのインターフェース。
type Provider interface {
	Vendor() model.VideoVendor
	// Submit は生成タスクを登録し、初期状態のタスクを返す。
	Submit(ctx context.Context, req model.VideoRequest) (*model.VideoTask, error)
	// Status はタスクの現在状態を返す。存在しない場合はErrTaskNotFoundを返す。
	Status(ctx context.Context, taskID string) (*model.VideoTask, error)
}

// aspectRatioChecker は受け付けるアスペクト比が限られるProviderが実装する。
type aspectRatioChecker interface {
	SupportsAspectRatio(ratio string) bool
}

// ErrTaskNotFound はベンダー側にタスクが存在しないことを示す。
var ErrTaskNotFound = errors.New("task not found")

// maxErrorBody はエラーレスポンスから読み取る最大バイト数。
const maxErrorBody = 4 << 10

// statusError は2xx以外のHTTPレスポンスを表す。
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// doJSON はJSONリクエストを送信し、2xxの場合に応答をoutへデコードする。
func doJSON(ctx context.Context, client *http.Client, method, url string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &statusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
