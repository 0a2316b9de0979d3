package core

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

const messagesPath = "/messages"

func (s *Service) SendMessage(ctx context.Context, req SendMessageRequest) (message Message, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"resource": "message", "method": http.MethodPost}
	defer func() {
		s.observeOperation(ctx, startedAt, "send_message", err, fields)
	}()

	if err = RequestValidationError("send_message", req.Validate()); err != nil {
		return Message{}, err
	}
	err = s.call(ctx, "send_message", ExecuteRequest{
		Method: http.MethodPost,
		Path:   messagesPath,
		Body:   req,
	}, &message)
	if err != nil {
		return Message{}, err
	}
	fields["message_id"] = message.ID
	fields["message_status"] = string(message.Status)
	return message, nil
}

func (s *Service) ListMessages(ctx context.Context, req ListMessagesRequest) (page MessagePage, err error) {
	startedAt := time.Now().UTC()
	req = req.withDefaults()
	fields := map[string]any{
		"resource": "message",
		"method":   http.MethodGet,
		"page":     req.Page,
		"limit":    req.Limit,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "list_messages", err, fields)
	}()

	if err = RequestValidationError("list_messages", req.Validate()); err != nil {
		return MessagePage{}, err
	}
	err = s.call(ctx, "list_messages", ExecuteRequest{
		Method: http.MethodGet,
		Path:   messagesPath,
		Query: map[string]string{
			"page":  strconv.Itoa(req.Page),
			"limit": strconv.Itoa(req.Limit),
		},
	}, &page)
	if err != nil {
		return MessagePage{}, err
	}
	fields["count"] = len(page.Messages)
	return page, nil
}

func (s *Service) GetMessage(ctx context.Context, id string) (message Message, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"resource": "message", "method": http.MethodGet, "message_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_message", err, fields)
	}()

	path, err := resourcePath("get_message", messagesPath, id)
	if err != nil {
		return Message{}, err
	}
	if err = s.call(ctx, "get_message", ExecuteRequest{Method: http.MethodGet, Path: path}, &message); err != nil {
		return Message{}, err
	}
	return message, nil
}
