// Package livesync keeps in-memory copies of the remote catalog collections
// up to date from an initial bulk load plus per-table change subscriptions.
//
// Every mutation, whether from the load, a change event or a setter, is
// applied under one lock, so the mutation that completes last wins. There is
// no ordering barrier between the load and early change events.
package livesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/metrics"
	"storefront/internal/models"

	"github.com/rs/zerolog"
)

// Error stages passed to the ErrorReporter.
const (
	StageLoad      = "load"
	StageRefetch   = "refetch"
	StageSubscribe = "subscribe"
	StageDecode    = "decode"
)

type ItemLoader interface {
	GetAll(ctx context.Context) ([]models.CatalogItem, error)
}

type BookingLoader interface {
	GetAll(ctx context.Context) ([]models.Booking, error)
}

type CategoryLoader interface {
	GetAll(ctx context.Context) ([]models.Category, error)
}

type ReviewLoader interface {
	GetApproved(ctx context.Context) ([]models.Review, error)
}

type AboutLoader interface {
	Get(ctx context.Context) (*models.AboutInfo, error)
}

type AppInfoLoader interface {
	Get(ctx context.Context) (*models.AppInfo, error)
}

// Sources are the fetchers used by the bulk load and the review refetch.
// The entity repositories satisfy them.
type Sources struct {
	Items      ItemLoader
	Bookings   BookingLoader
	Categories CategoryLoader
	Reviews    ReviewLoader
	About      AboutLoader
	AppInfo    AppInfoLoader
}

func (s Sources) validate() error {
	if s.Items == nil || s.Bookings == nil || s.Categories == nil || s.Reviews == nil || s.About == nil || s.AppInfo == nil {
		return errors.New("livesync: every source is required")
	}
	return nil
}

// ErrorReporter receives load, refetch, subscribe and decode failures.
// It is the side channel for errors the store does not return.
type ErrorReporter func(stage, collection string, err error)

type Option func(*Store)

func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			l := logger.With().Str("component", "livesync").Logger()
			s.logger = &l
		}
	}
}

func WithErrorReporter(r ErrorReporter) Option {
	return func(s *Store) { s.reporter = r }
}

func WithEventBus(bus *events.EventBus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithFetchTimeout bounds the review refetch triggered by change events.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Store) { s.fetchTimeout = d }
}

type Store struct {
	sources      Sources
	subscriber   domain.Subscriber
	subs         *SubscriptionManager
	bus          *events.EventBus
	logger       *zerolog.Logger
	reporter     ErrorReporter
	fetchTimeout time.Duration

	runCtx  context.Context
	stop    context.CancelFunc
	started atomic.Bool

	// emitMu orders mutation+notification pairs and fences Close.
	emitMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	loaded     bool
	inflight   int
	items      []models.CatalogItem
	bookings   []models.Booking
	categories []models.Category
	reviews    []models.Review
	about      *models.AboutInfo
	appInfo    *models.AppInfo
}

// New builds a store with empty collections. subscriber may be nil, in which
// case the store only loads and never follows changes.
func New(sources Sources, subscriber domain.Subscriber, opts ...Option) *Store {
	nop := zerolog.Nop()
	s := &Store{
		sources:      sources,
		subscriber:   subscriber,
		bus:          events.NewEventBus(),
		logger:       &nop,
		fetchTimeout: 15 * time.Second,
		items:        []models.CatalogItem{},
		bookings:     []models.Booking{},
		categories:   []models.Category{},
		reviews:      []models.Review{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reporter == nil {
		s.reporter = func(stage, collection string, err error) {
			s.logger.Error().Err(err).Str("stage", stage).Str("collection", collection).Msg("sync error")
		}
	}
	s.subs = NewSubscriptionManager(s.logger)
	s.runCtx, s.stop = context.WithCancel(context.Background())
	return s
}

// Start opens the table subscriptions and then runs the bulk load. It returns
// after the load settled. Subscribe failures are reported and returned
// joined; load failures are only reported.
func (s *Store) Start(ctx context.Context) error {
	if err := s.sources.validate(); err != nil {
		return err
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("livesync: already started")
	}
	if s.isClosed() {
		return ErrClosed
	}

	subErr := s.subscribeAll(ctx)
	s.load(ctx)

	s.logger.Info().
		Int("items", len(s.Items())).
		Int("bookings", len(s.Bookings())).
		Int("categories", len(s.Categories())).
		Int("reviews", len(s.Reviews())).
		Int("subscriptions", s.subs.Len()).
		Msg("store ready")
	return subErr
}

// Refresh re-runs the bulk load.
func (s *Store) Refresh(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.load(ctx)
	return nil
}

// Close releases every subscription. No collection is mutated and no
// listener is called once Close returned.
func (s *Store) Close() error {
	s.emitMu.Lock()
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	s.emitMu.Unlock()

	if already {
		return nil
	}
	s.stop()
	return s.subs.CloseAll()
}

// OnChange registers a listener for collection changes and returns a func
// removing it. Listeners run synchronously on the mutating goroutine; they
// may read the store but must not call its setters or Close.
func (s *Store) OnChange(listener func(events.CollectionChange)) func() {
	return s.bus.Subscribe(events.EventCollectionChanged, func(e *events.Event) error {
		var change events.CollectionChange
		if err := e.Decode(&change); err != nil {
			return err
		}
		listener(change)
		return nil
	})
}

// Subscriptions exposes the subscription manager, mainly for health checks.
func (s *Store) Subscriptions() *SubscriptionManager {
	return s.subs
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.loaded || s.inflight > 0
}

func (s *Store) Items() []models.CatalogItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

func (s *Store) Bookings() []models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.bookings)
}

func (s *Store) Categories() []models.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.categories)
}

// Reviews returns the approved reviews.
func (s *Store) Reviews() []models.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.reviews)
}

func (s *Store) About() *models.AboutInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSingleton(s.about)
}

func (s *Store) AppInfo() *models.AppInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSingleton(s.appInfo)
}

// Setters override a collection locally. A later change event for the same
// record overwrites the local value.

func (s *Store) SetItems(items []models.CatalogItem) {
	items = orEmpty(slices.Clone(items))
	s.apply(CollectionItems, events.ReasonSet, "", func() (int, bool) {
		s.items = items
		return len(items), true
	})
}

func (s *Store) SetBookings(bookings []models.Booking) {
	bookings = orEmpty(slices.Clone(bookings))
	s.apply(CollectionBookings, events.ReasonSet, "", func() (int, bool) {
		s.bookings = bookings
		return len(bookings), true
	})
}

func (s *Store) SetCategories(categories []models.Category) {
	categories = orEmpty(slices.Clone(categories))
	s.apply(CollectionCategories, events.ReasonSet, "", func() (int, bool) {
		s.categories = categories
		return len(categories), true
	})
}

func (s *Store) SetReviews(reviews []models.Review) {
	reviews = orEmpty(slices.Clone(reviews))
	s.apply(CollectionReviews, events.ReasonSet, "", func() (int, bool) {
		s.reviews = reviews
		return len(reviews), true
	})
}

func (s *Store) SetAbout(about *models.AboutInfo) {
	about = cloneSingleton(about)
	s.apply(CollectionAbout, events.ReasonSet, "", func() (int, bool) {
		s.about = about
		return sizeOf(about), true
	})
}

func (s *Store) SetAppInfo(info *models.AppInfo) {
	info = cloneSingleton(info)
	s.apply(CollectionAppInfo, events.ReasonSet, "", func() (int, bool) {
		s.appInfo = info
		return sizeOf(info), true
	})
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// apply runs fn under the store lock unless the store is closed, then
// publishes a change notice when fn reports a change.
func (s *Store) apply(collection, reason, id string, fn func() (size int, changed bool)) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	size, changed := fn()
	s.mu.Unlock()

	if !changed {
		return false
	}
	metrics.IncSyncChange(collection, reason)
	change := events.CollectionChange{Collection: collection, Reason: reason, ID: id, Size: size, At: time.Now()}
	if err := s.bus.PublishJSON(events.EventCollectionChanged, change); err != nil {
		s.logger.Warn().Err(err).Str("collection", collection).Msg("change listener failed")
	}
	return true
}

func (s *Store) report(stage, collection string, err error) {
	metrics.IncSyncError(stage)
	s.reporter(stage, collection, err)
}

// load fetches all six collections concurrently. Each fetch settles on its
// own: a failure empties that collection only.
func (s *Store) load(ctx context.Context) {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(6)
	go func() {
		defer wg.Done()
		loadList(ctx, s, CollectionItems, s.sources.Items.GetAll, &s.items)
	}()
	go func() {
		defer wg.Done()
		loadList(ctx, s, CollectionBookings, s.sources.Bookings.GetAll, &s.bookings)
	}()
	go func() {
		defer wg.Done()
		loadList(ctx, s, CollectionCategories, s.sources.Categories.GetAll, &s.categories)
	}()
	go func() {
		defer wg.Done()
		loadList(ctx, s, CollectionReviews, s.approvedReviews, &s.reviews)
	}()
	go func() {
		defer wg.Done()
		loadSingleton(ctx, s, CollectionAbout, s.sources.About.Get, &s.about)
	}()
	go func() {
		defer wg.Done()
		loadSingleton(ctx, s, CollectionAppInfo, s.sources.AppInfo.Get, &s.appInfo)
	}()
	wg.Wait()

	s.mu.Lock()
	s.inflight--
	s.loaded = true
	s.mu.Unlock()
}

func loadList[T any](ctx context.Context, s *Store, collection string, fetch func(context.Context) ([]T, error), list *[]T) {
	rows, err := fetch(ctx)
	if err != nil {
		if s.isClosed() {
			return
		}
		s.report(StageLoad, collection, err)
		rows = nil
	}
	rows = orEmpty(rows)
	s.apply(collection, events.ReasonLoad, "", func() (int, bool) {
		*list = rows
		return len(rows), true
	})
}

func loadSingleton[T any](ctx context.Context, s *Store, collection string, fetch func(context.Context) (*T, error), slot **T) {
	rec, err := fetch(ctx)
	if err != nil {
		if s.isClosed() {
			return
		}
		s.report(StageLoad, collection, err)
		rec = nil
	}
	s.apply(collection, events.ReasonLoad, "", func() (int, bool) {
		*slot = rec
		return sizeOf(rec), true
	})
}

// approvedReviews never lets an unapproved review into the collection, even
// if the source returned one.
func (s *Store) approvedReviews(ctx context.Context) ([]models.Review, error) {
	reviews, err := s.sources.Reviews.GetApproved(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(reviews, func(r models.Review) bool { return !r.Approved }), nil
}

type tableBinding struct {
	table   string
	handler domain.ChangeHandler
}

func (s *Store) bindings() []tableBinding {
	return []tableBinding{
		{models.TableItems, listHandler(s, CollectionItems, &s.items)},
		{models.TableBookings, listHandler(s, CollectionBookings, &s.bookings)},
		{models.TableCategories, listHandler(s, CollectionCategories, &s.categories)},
		{models.TableReviews, s.onReviewChange},
		{models.TableAbout, singletonHandler(s, CollectionAbout, &s.about)},
		{models.TableAppInfo, singletonHandler(s, CollectionAppInfo, &s.appInfo)},
	}
}

func (s *Store) subscribeAll(ctx context.Context) error {
	if s.subscriber == nil {
		return nil
	}

	bindings := s.bindings()
	errs := make([]error, len(bindings))
	var wg sync.WaitGroup
	for i, b := range bindings {
		i, b := i, b
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := s.subscriber.Subscribe(ctx, b.table, b.handler)
			if err != nil {
				err = fmt.Errorf("subscribe %s: %w", b.table, err)
				s.report(StageSubscribe, b.table, err)
				errs[i] = err
				return
			}
			if err := s.subs.Add(b.table, sub); err != nil {
				errs[i] = err
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func listHandler[T keyed](s *Store, collection string, list *[]T) domain.ChangeHandler {
	return func(c domain.Change) {
		switch c.Kind {
		case domain.ChangeInsert:
			rec, err := decodeRecord[T](c.New)
			if err != nil {
				s.report(StageDecode, collection, err)
				return
			}
			s.apply(collection, events.ReasonInsert, rec.Key(), func() (int, bool) {
				*list = upsertFront(*list, rec)
				return len(*list), true
			})
		case domain.ChangeUpdate:
			rec, err := decodeRecord[T](c.New)
			if err != nil {
				s.report(StageDecode, collection, err)
				return
			}
			s.apply(collection, events.ReasonUpdate, rec.Key(), func() (int, bool) {
				var changed bool
				*list, changed = replace(*list, rec)
				return len(*list), changed
			})
		case domain.ChangeDelete:
			id, err := decodeID(c.Old)
			if err != nil {
				s.report(StageDecode, collection, err)
				return
			}
			s.apply(collection, events.ReasonDelete, id, func() (int, bool) {
				var changed bool
				*list, changed = remove(*list, id)
				return len(*list), changed
			})
		default:
			s.report(StageDecode, collection, fmt.Errorf("unknown change kind %q", c.Kind))
		}
	}
}

func singletonHandler[T any](s *Store, collection string, slot **T) domain.ChangeHandler {
	return func(c domain.Change) {
		if c.Kind == domain.ChangeDelete {
			s.apply(collection, events.ReasonDelete, "", func() (int, bool) {
				*slot = nil
				return 0, true
			})
			return
		}

		if len(c.New) == 0 {
			s.report(StageDecode, collection, errors.New("change without record"))
			return
		}
		rec := new(T)
		if err := json.Unmarshal(c.New, rec); err != nil {
			s.report(StageDecode, collection, fmt.Errorf("decode record: %w", err))
			return
		}
		s.apply(collection, reasonFor(c.Kind), "", func() (int, bool) {
			*slot = rec
			return 1, true
		})
	}
}

// onReviewChange refetches the approved reviews on every review change. The
// payload is not used: approval can flip in ways a single event cannot show.
func (s *Store) onReviewChange(domain.Change) {
	if s.isClosed() {
		return
	}
	ctx, cancel := context.WithTimeout(s.runCtx, s.fetchTimeout)
	defer cancel()

	reviews, err := s.approvedReviews(ctx)
	if err != nil {
		if !s.isClosed() {
			s.report(StageRefetch, CollectionReviews, err)
		}
		return
	}
	reviews = orEmpty(reviews)
	s.apply(CollectionReviews, events.ReasonRefetch, "", func() (int, bool) {
		s.reviews = reviews
		return len(reviews), true
	})
}

func reasonFor(kind domain.ChangeKind) string {
	switch kind {
	case domain.ChangeInsert:
		return events.ReasonInsert
	case domain.ChangeDelete:
		return events.ReasonDelete
	default:
		return events.ReasonUpdate
	}
}

func cloneSingleton[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func sizeOf[T any](v *T) int {
	if v == nil {
		return 0
	}
	return 1
}
