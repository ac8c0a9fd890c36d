package ai

import (
	"ChatCompanion/internal/config"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// DefaultFallbackReply отдаётся пользователю при любой ошибке транспорта или протокола.
const DefaultFallbackReply = "Извините, я сейчас слишком занят. Отдохну немного, попробуйте позже."

// Reason метка исхода запроса.
type Reason string

const (
	ReasonOK        Reason = "ok"
	ReasonTransport Reason = "transport" // DNS, отказ соединения, таймаут, TLS
	ReasonStatus    Reason = "status"    // ответ не 2xx
	ReasonMalformed Reason = "malformed" // 2xx, но тело не той формы
)

// Result размеченный исход одного запроса. Внешний контракт Complete видит только текст,
// а Reason и Err остаются для логов и тестов.
type Result struct {
	Text     string
	Reason   Reason
	Status   int
	Err      error
	Duration time.Duration
}

func (r Result) OK() bool { return r.Reason == ReasonOK }

// TextOr возвращает текст ответа или fallback при неуспехе.
func (r Result) TextOr(fallback string) string {
	if r.OK() {
		return r.Text
	}
	return fallback
}

// Request полный набор данных для одного запроса chat/completions.
type Request struct {
	SystemPrompt string
	History      []Message
	Identity     uint64
	Params       Params
}

// CompletionClient отправляет system + историю в OpenAI-совместимый endpoint.
type CompletionClient struct {
	client   openai.Client
	defaults Params
	fallback string
	logger   *zap.SugaredLogger
}

var _ Completer = (*CompletionClient)(nil)

// NewCompletionClient создаёт клиента поверх openai-go с HTTP-транспортом из NewHTTPClient.
func NewCompletionClient(cfg config.CompletionConfig, logger *zap.SugaredLogger) (*CompletionClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("ai: empty completion base url")
	}
	hc, err := NewHTTPClient(cfg.Proxy, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/") + "/"),
		option.WithHTTPClient(hc),
		option.WithMaxRetries(max(0, cfg.MaxRetries)),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	temp := cfg.Temperature
	fallback := cfg.Fallback
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultFallbackReply
	}
	return &CompletionClient{
		client:   openai.NewClient(opts...),
		defaults: Params{Model: cfg.Model, Temperature: &temp, MaxTokens: cfg.MaxTokens},
		fallback: fallback,
		logger:   logger,
	}, nil
}

// NewHTTPClient собирает транспорт: опциональный прокси host:port для обеих схем,
// отключённая проверка сертификатов (прокси в этой инсталляции терминируют TLS)
// и Bearer-ключ в заголовке Authorization.
func NewHTTPClient(proxy, apiKey string) (*http.Client, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	if proxy = strings.TrimSpace(proxy); proxy != "" {
		pu, err := ProxyURL(proxy)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(pu)
	}

	var rt http.RoundTripper = base
	if key := strings.TrimSpace(apiKey); key != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: key, TokenType: "Bearer"}),
			Base:   base,
		}
	}
	return &http.Client{Transport: rt}, nil
}

// ProxyURL превращает host:port в URL прокси. Для https-запросов используется туннель CONNECT
// через тот же адрес, поэтому схема одна.
func ProxyURL(hostport string) (*url.URL, error) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, fmt.Errorf("ai: invalid proxy %q: %w", hostport, err)
	}
	if host == "" {
		return nil, fmt.Errorf("ai: invalid proxy %q: empty host", hostport)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return nil, fmt.Errorf("ai: invalid proxy port %q: %w", port, err)
	}
	return &url.URL{Scheme: "http", Host: net.JoinHostPort(host, port)}, nil
}

// UserTag метка пользователя для поля user запроса.
func UserTag(identity uint64) string {
	return "user_" + strconv.FormatUint(identity, 10)
}

// Complete выполняет запрос и всегда возвращает текст: ответ модели или заглушку.
func (c *CompletionClient) Complete(ctx context.Context, systemPrompt string, history []Message, identity uint64, params Params) string {
	res := c.Do(ctx, Request{SystemPrompt: systemPrompt, History: history, Identity: identity, Params: params})
	return res.TextOr(c.fallback)
}

// Fallback текст-заглушка, который получает пользователь при сбое.
func (c *CompletionClient) Fallback() string { return c.fallback }

// Do выполняет запрос и возвращает размеченный результат без применения политики заглушки.
func (c *CompletionClient) Do(ctx context.Context, req Request) Result {
	params := c.buildParams(req)

	var httpResp *http.Response
	start := time.Now()
	c.logger.Infow("Запрос в OpenAI...", "model", params.Model, "messages", len(params.Messages), "user", UserTag(req.Identity))
	completion, err := c.client.Chat.Completions.New(ctx, params, option.WithResponseInto(&httpResp))
	res := classify(completion, httpResp, err)
	res.Duration = time.Since(start)

	if res.OK() {
		c.logger.Infow("Ответ OpenAI получен", "duration", res.Duration.String())
	} else {
		c.logger.Errorw("Ошибка ответа OpenAI",
			"duration", res.Duration.String(),
			"reason", res.Reason,
			"status", res.Status,
			"error", res.Err,
		)
	}
	return res
}

func (c *CompletionClient) buildParams(req Request) openai.ChatCompletionNewParams {
	model := req.Params.Model
	if model == "" {
		model = c.defaults.Model
	}
	temp := req.Params.Temperature
	if temp == nil {
		temp = c.defaults.Temperature
	}
	maxTokens := req.Params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.defaults.MaxTokens
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	for _, m := range req.History {
		switch m.Role {
		case RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		}
	}

	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
		User:     openai.String(UserTag(req.Identity)),
	}
	if temp != nil {
		p.Temperature = openai.Float(*temp)
	}
	if maxTokens > 0 {
		p.MaxTokens = openai.Int(maxTokens)
	}
	return p
}

// classify переводит ответ SDK в размеченный результат.
func classify(completion *openai.ChatCompletion, httpResp *http.Response, err error) Result {
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Result{Reason: ReasonStatus, Status: apiErr.StatusCode, Err: err}
		}
		// Ответ был получен со статусом 2xx, но SDK не смог его разобрать
		if httpResp != nil && httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
			return Result{Reason: ReasonMalformed, Status: httpResp.StatusCode, Err: err}
		}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return Result{Reason: ReasonMalformed, Status: http.StatusOK, Err: err}
		}
		return Result{Reason: ReasonTransport, Err: err}
	}

	status := http.StatusOK
	if httpResp != nil {
		status = httpResp.StatusCode
	}
	if completion == nil || len(completion.Choices) == 0 {
		return Result{Reason: ReasonMalformed, Status: status, Err: errors.New("response has no choices")}
	}
	text := completion.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return Result{Reason: ReasonMalformed, Status: status, Err: errors.New("first choice has empty content")}
	}
	return Result{Text: text, Reason: ReasonOK, Status: status}
}
