package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/export"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/view"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "loading": s.deps.Catalog.Loading()})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog.Loading() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// Public reads come from the synced store.

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	c := s.deps.Catalog
	q := r.URL.Query()
	items := view.FilterItems(c.Items(), q.Get("search"), q.Get("category"))
	writeJSON(w, http.StatusOK, map[string]any{"items": view.Items(items, c.Categories(), c.Reviews())})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c := s.deps.Catalog
	for _, it := range c.Items() {
		if it.ID == id {
			writeJSON(w, http.StatusOK, view.Items([]models.CatalogItem{it}, c.Categories(), c.Reviews())[0])
			return
		}
	}
	s.writeDomainError(w, r, domain.NotFound(models.TableItems, id))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": s.deps.Catalog.Categories()})
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	c := s.deps.Catalog
	writeJSON(w, http.StatusOK, map[string]any{"reviews": view.Reviews(c.Reviews(), c.Items())})
}

func (s *Server) handleGetAbout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"about": s.deps.Catalog.About()})
}

func (s *Server) handleGetAppInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"app": s.deps.Catalog.AppInfo()})
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var in models.ReviewInput
	if err := decodeBody(r, &in); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	review, err := s.deps.Reviews.Create(r.Context(), in)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var in models.BookingInput
	if err := decodeBody(r, &in); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if in.ItemID != nil && *in.ItemID != "" && !s.bookable(*in.ItemID) {
		s.writeDomainError(w, r, domain.Invalid("booking", "item_id", "is not open for booking"))
		return
	}
	booking, err := s.deps.Bookings.Create(r.Context(), in)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// bookable reports whether a synced item accepts bookings. Unknown ids are
// left to the remote store to reject.
func (s *Server) bookable(itemID string) bool {
	for _, it := range s.deps.Catalog.Items() {
		if it.ID == itemID {
			return it.AllowBooking && !it.Reserved
		}
	}
	return true
}

// Admin

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var in models.ItemPatch
	if err := decodeBody(r, &in); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	item, err := s.deps.Items.Create(r.Context(), in)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var patch models.ItemPatch
	if err := decodeBody(r, &patch); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	item, err := s.deps.Items.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Items.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in models.CategoryPatch
	if err := decodeBody(r, &in); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	category, err := s.deps.Categories.Create(r.Context(), in)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var patch models.CategoryPatch
	if err := decodeBody(r, &patch); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	category, err := s.deps.Categories.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Categories.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	c := s.deps.Catalog
	writeJSON(w, http.StatusOK, map[string]any{"bookings": view.Bookings(c.Bookings(), c.Items())})
}

func (s *Server) handleUpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	booking, err := s.deps.Bookings.UpdateStatus(r.Context(), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *Server) handleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Bookings.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListAllReviews goes to the remote store; the synced copy only holds approved reviews.
func (s *Server) handleListAllReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.deps.Reviews.GetAll(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": view.Reviews(reviews, s.deps.Catalog.Items())})
}

func (s *Server) handleApproveReview(w http.ResponseWriter, r *http.Request) {
	review, err := s.deps.Reviews.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Reviews.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateAbout(w http.ResponseWriter, r *http.Request) {
	var patch models.AboutPatch
	if err := decodeBody(r, &patch); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	about, err := s.deps.About.Update(r.Context(), patch)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, about)
}

func (s *Server) handleUpdateAppInfo(w http.ResponseWriter, r *http.Request) {
	var patch models.AppInfoPatch
	if err := decodeBody(r, &patch); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	info, err := s.deps.AppInfo.Update(r.Context(), patch)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusOK, map[string]any{"notifications": []models.Notification{}})
		return
	}
	list, err := s.deps.History.ListNotifications(r.Context(), models.NotificationHistoryLimit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *Server) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notifier == nil {
		writeError(w, http.StatusServiceUnavailable, "notifications are disabled")
		return
	}
	var body struct {
		Title   string          `json:"title"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data,omitempty"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.deps.Notifier.Send(r.Context(), notify.General(body.Title, body.Message, body.Data)); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	c := s.deps.Catalog
	now := s.now()

	var buf bytes.Buffer
	if err := export.BookingsWorkbook(&buf, view.Bookings(c.Bookings(), c.Items()), now); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="bookings_%s.xlsx"`, now.Format("2006-01-02")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
