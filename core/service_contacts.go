package core

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

const contactsPath = "/contacts"

func (s *Service) CreateContact(ctx context.Context, req CreateContactRequest) (contact Contact, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"resource": "contact", "method": http.MethodPost}
	defer func() {
		s.observeOperation(ctx, startedAt, "create_contact", err, fields)
	}()

	if err = RequestValidationError("create_contact", req.Validate()); err != nil {
		return Contact{}, err
	}
	err = s.call(ctx, "create_contact", ExecuteRequest{
		Method: http.MethodPost,
		Path:   contactsPath,
		Body:   req,
	}, &contact)
	if err != nil {
		return Contact{}, err
	}
	fields["contact_id"] = contact.ID
	return contact, nil
}

func (s *Service) ListContacts(ctx context.Context, req ListContactsRequest) (page ContactPage, err error) {
	startedAt := time.Now().UTC()
	req = req.withDefaults()
	fields := map[string]any{
		"resource":   "contact",
		"method":     http.MethodGet,
		"page_index": req.PageIndex,
		"max":        req.Max,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "list_contacts", err, fields)
	}()

	if err = RequestValidationError("list_contacts", req.Validate()); err != nil {
		return ContactPage{}, err
	}
	err = s.call(ctx, "list_contacts", ExecuteRequest{
		Method: http.MethodGet,
		Path:   contactsPath,
		Query: map[string]string{
			"pageIndex": strconv.Itoa(req.PageIndex),
			"max":       strconv.Itoa(req.Max),
		},
	}, &page)
	if err != nil {
		return ContactPage{}, err
	}
	fields["count"] = len(page.Contacts)
	return page, nil
}

func (s *Service) GetContact(ctx context.Context, id string) (contact Contact, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"resource": "contact", "method": http.MethodGet, "contact_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_contact", err, fields)
	}()

	path, err := resourcePath("get_contact", contactsPath, id)
	if err != nil {
		return Contact{}, err
	}
	if err = s.call(ctx, "get_contact", ExecuteRequest{Method: http.MethodGet, Path: path}, &contact); err != nil {
		return Contact{}, err
	}
	return contact, nil
}

func (s *Service) UpdateContact(ctx context.Context, id string, req UpdateContactRequest) (contact Contact, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"resource": "contact", "method": http.MethodPatch, "contact_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "update_contact", err, fields)
	}()

	path, err := resourcePath("update_contact", contactsPath, id)
	if err != nil {
		return Contact{}, err
	}
	if err = RequestValidationError("update_contact", req.Validate()); err != nil {
		return Contact{}, err
	}
	err = s.call(ctx, "update_contact", ExecuteRequest{
		Method: http.MethodPatch,
		Path:   path,
		Body:   req,
	}, &contact)
	if err != nil {
		return Contact{}, err
	}
	return contact, nil
}

func (s *Service) DeleteContact(ctx context.Context, id string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"resource": "contact", "method": http.MethodDelete, "contact_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "delete_contact", err, fields)
	}()

	path, err := resourcePath("delete_contact", contactsPath, id)
	if err != nil {
		return err
	}
	return s.call(ctx, "delete_contact", ExecuteRequest{Method: http.MethodDelete, Path: path}, nil)
}
