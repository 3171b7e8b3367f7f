// Пакет botclient — HTTP-клиент внутреннего API bot-module.
// Через него ядро просит внешний коллаборатор физически доставить
// байты получателю (копирование сообщения из канала-хранилища) и
// отправить текстовое уведомление. Поддерживает TLS с кастомным CA.
package botclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client — HTTP-клиент bot-module.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент bot-module.
// baseURL — базовый URL bot-module (VM_BOT_URL).
// token — bearer-токен для авторизации (пустая строка — без авторизации).
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// timeout — таймаут HTTP-запросов (VM_BOT_TIMEOUT).
func New(baseURL, token, caCertPath string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата bot-module: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат bot-module добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger.With(slog.String("component", "bot_client")),
	}, nil
}

// deliverRequest — тело запроса доставки файла получателю.
type deliverRequest struct {
	RecipientID int64 `json:"recipient_id"`
	ChannelID   int64 `json:"channel_id"`
	MessageID   int64 `json:"message_id"`
}

// notifyRequest — тело запроса отправки уведомления.
type notifyRequest struct {
	RecipientID int64  `json:"recipient_id"`
	Text        string `json:"text"`
}

// Deliver просит bot-module скопировать сообщение с файлом из
// канала-хранилища получателю. Ошибка содержит непрозрачную
// классификацию от bot-module — ядро её логирует, но не интерпретирует.
func (c *Client) Deliver(ctx context.Context, recipientID, channelID, messageID int64) error {
	return c.post(ctx, "/internal/v1/deliver", deliverRequest{
		RecipientID: recipientID,
		ChannelID:   channelID,
		MessageID:   messageID,
	})
}

// Notify просит bot-module отправить текстовое уведомление получателю.
// Best-effort контракт: вызывающий код решает, фатальна ли ошибка.
func (c *Client) Notify(ctx context.Context, recipientID int64, text string) error {
	return c.post(ctx, "/internal/v1/notify", notifyRequest{
		RecipientID: recipientID,
		Text:        text,
	})
}

// post выполняет POST JSON-запрос к bot-module и проверяет статус ответа.
func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("сериализация запроса %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("создание запроса %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return fmt.Errorf("запрос %s к bot-module: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Читаем хвост ответа как непрозрачную классификацию ошибки
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bot-module вернул статус %d на %s: %s",
			resp.StatusCode, path, strings.TrimSpace(string(detail)))
	}

	return nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}
