package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/munnerz/goautoneg"

	"github.com/hitoshi/googlelogin/internal/model"
)

// ErrorResponseBody はJSONエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ErrorPageRenderer はHTMLのエラーページを描画するインターフェース。
type ErrorPageRenderer interface {
	RenderError(w http.ResponseWriter, status int, apiErr *model.APIError) error
}

// ErrorBoundary はハンドラーから返されたエラーをHTTPレスポンスへ変換する。
// 4xxのAPIErrorのみ実際のメッセージを返し、それ以外は汎用メッセージに置き換えて詳細をログへ記録する。
type ErrorBoundary struct {
	renderer ErrorPageRenderer
	logger   *slog.Logger
}

// NewErrorBoundary はErrorBoundaryを生成する。rendererがnilの場合は常にJSONで応答する。
func NewErrorBoundary(renderer ErrorPageRenderer, logger *slog.Logger) *ErrorBoundary {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorBoundary{renderer: renderer, logger: logger}
}

// Handle はエラーを分類し、Acceptヘッダーに応じてJSONまたはHTMLで応答する。
func (b *ErrorBoundary) Handle(w http.ResponseWriter, r *http.Request, err error) {
	shown := b.classify(r, err)
	status := shown.HTTPStatus()

	if b.renderer != nil && acceptsHTML(r) {
		renderErr := b.renderer.RenderError(w, status, shown)
		if renderErr == nil {
			return
		}
		// 描画失敗時はJSONで応答する
		b.logger.Error("failed to render error page",
			slog.String("error", renderErr.Error()),
			slog.String("request_id", RequestIDFromContext(r.Context())),
		)
	}

	WriteErrorResponse(w, status, shown)
}

// classify はクライアントに返すAPIErrorを決定する。
func (b *ErrorBoundary) classify(r *http.Request, err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.IsClientError() {
		b.logger.Debug("client error",
			slog.String("code", apiErr.Code),
			slog.String("path", r.URL.Path),
			slog.String("request_id", RequestIDFromContext(r.Context())),
		)
		return apiErr
	}

	b.logger.Error("request failed",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", RequestIDFromContext(r.Context())),
	)

	masked := model.NewInternalError()
	if apiErr != nil {
		masked.Status = apiErr.HTTPStatus()
	}
	return masked
}

// acceptsHTML はAcceptヘッダーがtext/htmlを受け付けるかを判定する。
// ヘッダーがない場合は受け付けるものとして扱う。
func acceptsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	return goautoneg.Negotiate(accept, []string{"text/html", "application/json"}) == "text/html"
}

// WriteErrorResponse は統一エラーフォーマットでJSONエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}
