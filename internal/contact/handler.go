package contact

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/redmonkez12/contacts-api/internal/auth"
	"github.com/redmonkez12/contacts-api/internal/httputil"
	"github.com/redmonkez12/contacts-api/internal/logging"
)

const (
	defaultLimit        = 10
	maxLimit            = 100
	defaultBirthdayDays = 7
	dateLayout          = "2006-01-02"
)

var errInvalidBirthday = errors.New("birthday must be formatted as YYYY-MM-DD")

// Store is the persistence contract the handlers depend on.
// *Repository is the production implementation.
type Store interface {
	Create(ctx context.Context, ownerID int64, input CreateInput) (*Contact, error)
	GetByID(ctx context.Context, id, ownerID int64) (*Contact, error)
	List(ctx context.Context, ownerID int64, limit, offset int, search string) ([]*Contact, error)
	Update(ctx context.Context, id, ownerID int64, input UpdateInput) (*Contact, error)
	Delete(ctx context.Context, id, ownerID int64) (*Contact, error)
	UpcomingBirthdays(ctx context.Context, ownerID int64, withinDays int) ([]*Contact, error)
}

// Handler contains HTTP handlers for contact endpoints. All routes sit
// behind the auth middleware, so a current user is always present.
type Handler struct {
	store  Store
	logger *logging.Logger
}

func NewHandler(store Store, logger *logging.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// ContactRequest is the create/update request body. For updates, absent
// fields are left unchanged.
type ContactRequest struct {
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	Birthday       *string `json:"birthday"` // YYYY-MM-DD
	AdditionalData *string `json:"additional_data"`
}

// ContactResponse is a contact in API responses
type ContactResponse struct {
	ID             int64   `json:"id"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone"`
	Birthday       string  `json:"birthday"`
	AdditionalData *string `json:"additional_data"`
	CreatedAt      string  `json:"created_at"`
}

func toResponse(c *Contact) ContactResponse {
	return ContactResponse{
		ID:             c.ID,
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		Email:          c.Email,
		Phone:          c.Phone,
		Birthday:       c.Birthday.Format(dateLayout),
		AdditionalData: c.AdditionalData,
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
	}
}

func toResponseList(contacts []*Contact) []ContactResponse {
	out := make([]ContactResponse, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, toResponse(c))
	}
	return out
}

// List returns a page of the caller's contacts
// @Summary      List contacts
// @Tags         contacts
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Page size (max 100)"
// @Param        offset query int false "Page offset"
// @Param        search query string false "Case-insensitive match on name or email"
// @Success      200 {array} ContactResponse
// @Router       /contacts [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	currentUser, _ := auth.GetCurrentUserFromContext(r.Context())

	limit := queryInt(r, "limit", defaultLimit)
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	search := r.URL.Query().Get("search")

	contacts, err := h.store.List(r.Context(), currentUser.ID, limit, offset, search)
	if err != nil {
		logger.Error("failed to list contacts", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to list contacts", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, toResponseList(contacts), http.StatusOK)
}

// Create adds a new contact for the caller
// @Summary      Create contact
// @Tags         contacts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ContactRequest true "Contact fields"
// @Success      201 {object} ContactResponse
// @Failure      400 {object} httputil.ErrorResponse
// @Router       /contacts [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	currentUser, _ := auth.GetCurrentUserFromContext(r.Context())

	var req ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	input, err := req.toCreateInput()
	if err != nil {
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	created, err := h.store.Create(r.Context(), currentUser.ID, input)
	if err != nil {
		logger.Error("failed to create contact", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to create contact", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("contact created", "contact_id", created.ID)

	httputil.RespondJSON(w, toResponse(created), http.StatusCreated)
}

// Get returns one of the caller's contacts
// @Summary      Get contact
// @Tags         contacts
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Contact ID"
// @Success      200 {object} ContactResponse
// @Failure      404 {object} httputil.ErrorResponse "Missing or owned by another user"
// @Router       /contacts/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	currentUser, _ := auth.GetCurrentUserFromContext(r.Context())

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	found, err := h.store.GetByID(r.Context(), id, currentUser.ID)
	if err != nil {
		logger.Error("failed to get contact", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to get contact", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}
	if found == nil {
		httputil.RespondErrorWithCode(w, "contact not found", httputil.CodeContactNotFound, http.StatusNotFound)
		return
	}

	httputil.RespondJSON(w, toResponse(found), http.StatusOK)
}

// Update applies a partial update to one of the caller's contacts
// @Summary      Update contact
// @Tags         contacts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Contact ID"
// @Param        request body ContactRequest true "Fields to change"
// @Success      200 {object} ContactResponse
// @Failure      404 {object} httputil.ErrorResponse "Missing or owned by another user"
// @Router       /contacts/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	currentUser, _ := auth.GetCurrentUserFromContext(r.Context())

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	input, err := req.toUpdateInput()
	if err != nil {
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	updated, err := h.store.Update(r.Context(), id, currentUser.ID, input)
	if err != nil {
		logger.Error("failed to update contact", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to update contact", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}
	if updated == nil {
		httputil.RespondErrorWithCode(w, "contact not found", httputil.CodeContactNotFound, http.StatusNotFound)
		return
	}

	logger.Info("contact updated", "contact_id", updated.ID)

	httputil.RespondJSON(w, toResponse(updated), http.StatusOK)
}

// Delete removes one of the caller's contacts
// @Summary      Delete contact
// @Tags         contacts
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Contact ID"
// @Success      200 {object} ContactResponse "Last-known values of the deleted contact"
// @Failure      404 {object} httputil.ErrorResponse "Missing or owned by another user"
// @Router       /contacts/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	currentUser, _ := auth.GetCurrentUserFromContext(r.Context())

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	deleted, err := h.store.Delete(r.Context(), id, currentUser.ID)
	if err != nil {
		logger.Error("failed to delete contact", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to delete contact", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}
	if deleted == nil {
		httputil.RespondErrorWithCode(w, "contact not found", httputil.CodeContactNotFound, http.StatusNotFound)
		return
	}

	logger.Info("contact deleted", "contact_id", deleted.ID)

	httputil.RespondJSON(w, toResponse(deleted), http.StatusOK)
}

// Birthdays lists contacts with a birthday in the next N days
// @Summary      Upcoming birthdays
// @Tags         contacts
// @Produce      json
// @Security     BearerAuth
// @Param        days query int false "Window in days (default 7)"
// @Success      200 {array} ContactResponse
// @Router       /contacts/birthdays [get]
func (h *Handler) Birthdays(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())
	currentUser, _ := auth.GetCurrentUserFromContext(r.Context())

	days := queryInt(r, "days", defaultBirthdayDays)
	if days < 0 {
		days = defaultBirthdayDays
	}

	contacts, err := h.store.UpcomingBirthdays(r.Context(), currentUser.ID, days)
	if err != nil {
		logger.Error("failed to load upcoming birthdays", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to load upcoming birthdays", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, toResponseList(contacts), http.StatusOK)
}

func (req *ContactRequest) toCreateInput() (CreateInput, error) {
	if req.FirstName == nil || req.LastName == nil || req.Email == nil ||
		req.Phone == nil || req.Birthday == nil {
		return CreateInput{}, errors.New("first_name, last_name, email, phone and birthday are required")
	}

	birthday, err := time.Parse(dateLayout, *req.Birthday)
	if err != nil {
		return CreateInput{}, errInvalidBirthday
	}

	return CreateInput{
		FirstName:      *req.FirstName,
		LastName:       *req.LastName,
		Email:          *req.Email,
		Phone:          *req.Phone,
		Birthday:       birthday,
		AdditionalData: req.AdditionalData,
	}, nil
}

func (req *ContactRequest) toUpdateInput() (UpdateInput, error) {
	input := UpdateInput{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Phone:          req.Phone,
		AdditionalData: req.AdditionalData,
	}

	if req.Birthday != nil {
		birthday, err := time.Parse(dateLayout, *req.Birthday)
		if err != nil {
			return UpdateInput{}, errInvalidBirthday
		}
		input.Birthday = &birthday
	}

	return input, nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		httputil.RespondErrorWithCode(w, "invalid contact id", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return n
}
