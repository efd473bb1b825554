package livesync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/events"
	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type itemsFunc func(context.Context) ([]models.CatalogItem, error)

func (f itemsFunc) GetAll(ctx context.Context) ([]models.CatalogItem, error) { return f(ctx) }

type bookingsFunc func(context.Context) ([]models.Booking, error)

func (f bookingsFunc) GetAll(ctx context.Context) ([]models.Booking, error) { return f(ctx) }

type categoriesFunc func(context.Context) ([]models.Category, error)

func (f categoriesFunc) GetAll(ctx context.Context) ([]models.Category, error) { return f(ctx) }

type reviewsFunc func(context.Context) ([]models.Review, error)

func (f reviewsFunc) GetApproved(ctx context.Context) ([]models.Review, error) { return f(ctx) }

type aboutFunc func(context.Context) (*models.AboutInfo, error)

func (f aboutFunc) Get(ctx context.Context) (*models.AboutInfo, error) { return f(ctx) }

type appInfoFunc func(context.Context) (*models.AppInfo, error)

func (f appInfoFunc) Get(ctx context.Context) (*models.AppInfo, error) { return f(ctx) }

func emptySources() Sources {
	return Sources{
		Items:      itemsFunc(func(context.Context) ([]models.CatalogItem, error) { return nil, nil }),
		Bookings:   bookingsFunc(func(context.Context) ([]models.Booking, error) { return nil, nil }),
		Categories: categoriesFunc(func(context.Context) ([]models.Category, error) { return nil, nil }),
		Reviews:    reviewsFunc(func(context.Context) ([]models.Review, error) { return nil, nil }),
		About:      aboutFunc(func(context.Context) (*models.AboutInfo, error) { return nil, nil }),
		AppInfo:    appInfoFunc(func(context.Context) (*models.AppInfo, error) { return nil, nil }),
	}
}

type fakeSubscriber struct {
	mu       sync.Mutex
	handlers map[string]domain.ChangeHandler
	closed   map[string]int
	fail     map[string]error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		handlers: make(map[string]domain.ChangeHandler),
		closed:   make(map[string]int),
		fail:     make(map[string]error),
	}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, table string, h domain.ChangeHandler) (domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[table]; err != nil {
		return nil, err
	}
	f.handlers[table] = h
	return &fakeSubscription{f: f, table: table}, nil
}

func (f *fakeSubscriber) handler(table string) domain.ChangeHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[table]
}

func (f *fakeSubscriber) emit(table string, c domain.Change) {
	if h := f.handler(table); h != nil {
		c.Table = table
		h(c)
	}
}

func (f *fakeSubscriber) subscribed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

type fakeSubscription struct {
	f     *fakeSubscriber
	table string
}

func (s *fakeSubscription) Close() error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	delete(s.f.handlers, s.table)
	s.f.closed[s.table]++
	return nil
}

type reportLog struct {
	mu      sync.Mutex
	entries []string
}

func (r *reportLog) reporter() ErrorReporter {
	return func(stage, collection string, err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.entries = append(r.entries, stage+":"+collection)
	}
}

func (r *reportLog) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

func insert(raw string) domain.Change {
	return domain.Change{Kind: domain.ChangeInsert, New: []byte(raw)}
}

func update(raw string) domain.Change {
	return domain.Change{Kind: domain.ChangeUpdate, New: []byte(raw)}
}

func del(id string) domain.Change {
	return domain.Change{Kind: domain.ChangeDelete, Old: []byte(`{"id":"` + id + `"}`)}
}

func categoryIDs(cats []models.Category) []string {
	ids := make([]string, 0, len(cats))
	for _, c := range cats {
		ids = append(ids, c.ID)
	}
	return ids
}

func startStore(t *testing.T, sources Sources, sub domain.Subscriber, opts ...Option) *Store {
	t.Helper()
	store := New(sources, sub, opts...)
	require.NoError(t, store.Start(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreStart(t *testing.T) {
	t.Run("PopulatesAllCollections", func(t *testing.T) {
		sources := emptySources()
		sources.Items = itemsFunc(func(context.Context) ([]models.CatalogItem, error) {
			return []models.CatalogItem{{ID: "i1", Title: "Ring", AllowBooking: true}}, nil
		})
		sources.Bookings = bookingsFunc(func(context.Context) ([]models.Booking, error) {
			return []models.Booking{{ID: "b1", Status: models.StatusPending}}, nil
		})
		sources.About = aboutFunc(func(context.Context) (*models.AboutInfo, error) {
			return &models.AboutInfo{ID: "a1", Content: "hello"}, nil
		})

		sub := newFakeSubscriber()
		store := New(sources, sub)
		assert.True(t, store.Loading())
		require.NoError(t, store.Start(context.Background()))
		defer store.Close()

		assert.False(t, store.Loading())
		assert.Len(t, store.Items(), 1)
		assert.Len(t, store.Bookings(), 1)
		assert.NotNil(t, store.Categories())
		assert.Empty(t, store.Categories())
		require.NotNil(t, store.About())
		assert.Equal(t, "hello", store.About().Content)
		assert.Nil(t, store.AppInfo())
		assert.Equal(t, 6, sub.subscribed())
		assert.Equal(t, []string{
			models.TableAbout, models.TableAppInfo, models.TableCategories,
			models.TableItems, models.TableBookings, models.TableReviews,
		}, store.Subscriptions().Tables())
	})

	t.Run("FailedFetchEmptiesOnlyItsCollection", func(t *testing.T) {
		reports := &reportLog{}
		sources := emptySources()
		sources.Items = itemsFunc(func(context.Context) ([]models.CatalogItem, error) {
			return nil, domain.Remote("select", models.TableItems, errors.New("timeout"))
		})
		sources.Categories = categoriesFunc(func(context.Context) ([]models.Category, error) {
			return []models.Category{{ID: "c1"}}, nil
		})
		sources.AppInfo = appInfoFunc(func(context.Context) (*models.AppInfo, error) {
			return nil, errors.New("boom")
		})

		store := startStore(t, sources, newFakeSubscriber(), WithErrorReporter(reports.reporter()))

		assert.False(t, store.Loading())
		assert.Empty(t, store.Items())
		assert.NotNil(t, store.Items())
		assert.Len(t, store.Categories(), 1)
		assert.Nil(t, store.AppInfo())
		assert.ElementsMatch(t, []string{"load:items", "load:app_info"}, reports.all())
	})

	t.Run("SubscribeFailureIsReturnedAndReported", func(t *testing.T) {
		reports := &reportLog{}
		sub := newFakeSubscriber()
		sub.fail[models.TableBookings] = errors.New("refused")

		store := New(emptySources(), sub, WithErrorReporter(reports.reporter()))
		defer store.Close()
		err := store.Start(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "subscribe reservations")
		assert.Equal(t, 5, store.Subscriptions().Len())
		assert.Equal(t, []string{"subscribe:reservations"}, reports.all())
		assert.False(t, store.Loading())
	})

	t.Run("StartTwice", func(t *testing.T) {
		store := startStore(t, emptySources(), nil)
		assert.Error(t, store.Start(context.Background()))
	})

	t.Run("MissingSource", func(t *testing.T) {
		sources := emptySources()
		sources.Reviews = nil
		assert.Error(t, New(sources, nil).Start(context.Background()))
	})
}

func TestStoreReconciliation(t *testing.T) {
	t.Run("InsertIsPrepended", func(t *testing.T) {
		sources := emptySources()
		sources.Categories = categoriesFunc(func(context.Context) ([]models.Category, error) {
			return []models.Category{{ID: "c3"}, {ID: "c2"}, {ID: "c1"}}, nil
		})
		sub := newFakeSubscriber()
		store := startStore(t, sources, sub)

		time.Sleep(10 * time.Millisecond)
		sub.emit(models.TableCategories, insert(`{"id":"c4","name":"Chains"}`))

		assert.Equal(t, []string{"c4", "c3", "c2", "c1"}, categoryIDs(store.Categories()))
	})

	t.Run("InsertThenUpdateKeepsOneRecord", func(t *testing.T) {
		sub := newFakeSubscriber()
		store := startStore(t, emptySources(), sub)

		sub.emit(models.TableItems, insert(`{"id":"i1","title":"Ring","price_jod":"100"}`))
		sub.emit(models.TableItems, update(`{"id":"i1","title":"Ring","price_jod":"120","reserved":true}`))

		items := store.Items()
		require.Len(t, items, 1)
		assert.Equal(t, "120", items[0].JOD.String())
		assert.True(t, items[0].Reserved)
		assert.True(t, items[0].AllowBooking)
	})

	t.Run("RedeliveredInsertReplaces", func(t *testing.T) {
		sub := newFakeSubscriber()
		store := startStore(t, emptySources(), sub)

		sub.emit(models.TableBookings, insert(`{"id":"b1","customer_name":"A","phone":"1"}`))
		sub.emit(models.TableBookings, insert(`{"id":"b2","customer_name":"B","phone":"2"}`))
		sub.emit(models.TableBookings, insert(`{"id":"b1","customer_name":"A2","phone":"1"}`))

		bookings := store.Bookings()
		require.Len(t, bookings, 2)
		assert.Equal(t, "b2", bookings[0].ID)
		assert.Equal(t, "A2", bookings[1].CustomerName)
		assert.Equal(t, models.StatusPending, bookings[1].Status)
	})

	t.Run("UpdatePreservesPosition", func(t *testing.T) {
		sources := emptySources()
		sources.Categories = categoriesFunc(func(context.Context) ([]models.Category, error) {
			return []models.Category{{ID: "c3"}, {ID: "c2", Name: "old"}, {ID: "c1"}}, nil
		})
		sub := newFakeSubscriber()
		store := startStore(t, sources, sub)

		sub.emit(models.TableCategories, update(`{"id":"c2","name":"new"}`))

		cats := store.Categories()
		assert.Equal(t, []string{"c3", "c2", "c1"}, categoryIDs(cats))
		assert.Equal(t, "new", cats[1].Name)
	})

	t.Run("AbsentIDsAreNoOps", func(t *testing.T) {
		sources := emptySources()
		sources.Categories = categoriesFunc(func(context.Context) ([]models.Category, error) {
			return []models.Category{{ID: "c1"}}, nil
		})
		sub := newFakeSubscriber()
		store := startStore(t, sources, sub)

		var notices atomic.Int32
		cancel := store.OnChange(func(events.CollectionChange) { notices.Add(1) })
		defer cancel()

		assert.NotPanics(t, func() {
			sub.emit(models.TableCategories, del("missing"))
			sub.emit(models.TableCategories, update(`{"id":"missing","name":"x"}`))
		})
		assert.Equal(t, []string{"c1"}, categoryIDs(store.Categories()))
		assert.Equal(t, int32(0), notices.Load())

		sub.emit(models.TableCategories, del("c1"))
		assert.Empty(t, store.Categories())
		assert.Equal(t, int32(1), notices.Load())
	})

	t.Run("MalformedEventIsSkipped", func(t *testing.T) {
		reports := &reportLog{}
		sub := newFakeSubscriber()
		store := startStore(t, emptySources(), sub, WithErrorReporter(reports.reporter()))

		sub.emit(models.TableItems, insert(`{broken`))
		sub.emit(models.TableItems, insert(`{"title":"no id"}`))
		sub.emit(models.TableItems, domain.Change{Kind: domain.ChangeDelete})
		sub.emit(models.TableItems, insert(`{"id":"i2","title":"Chain"}`))

		assert.Len(t, store.Items(), 1)
		assert.Equal(t, []string{"decode:items", "decode:items", "decode:items"}, reports.all())
	})

	t.Run("Singletons", func(t *testing.T) {
		sub := newFakeSubscriber()
		store := startStore(t, emptySources(), sub)

		sub.emit(models.TableAbout, insert(`{"id":"a1","content":"first"}`))
		require.NotNil(t, store.About())
		assert.Equal(t, "first", store.About().Content)

		sub.emit(models.TableAbout, update(`{"id":"a1","content":"second"}`))
		assert.Equal(t, "second", store.About().Content)

		sub.emit(models.TableAppInfo, insert(`{"id":"x1","title":"Shop"}`))
		assert.Equal(t, "Shop", store.AppInfo().Title)

		sub.emit(models.TableAbout, del("a1"))
		assert.Nil(t, store.About())
	})
}

func TestStoreReviewRefetch(t *testing.T) {
	var calls atomic.Int32
	sources := emptySources()
	sources.Reviews = reviewsFunc(func(context.Context) ([]models.Review, error) {
		calls.Add(1)
		return []models.Review{
			{ID: "r2", Rating: 4, Approved: true},
			{ID: "r1", Rating: 2, Approved: false},
		}, nil
	})
	sub := newFakeSubscriber()
	store := startStore(t, sources, sub)
	require.Equal(t, int32(1), calls.Load())

	sub.emit(models.TableReviews, insert(`{"id":"r3","rating":5}`))
	assert.Equal(t, int32(2), calls.Load())

	sub.emit(models.TableReviews, update(`{"id":"r1","approved":true}`))
	assert.Equal(t, int32(3), calls.Load())

	sub.emit(models.TableReviews, del("r2"))
	assert.Equal(t, int32(4), calls.Load())

	// malformed payloads still trigger the refetch; the payload is never read
	sub.emit(models.TableReviews, insert(`{garbage`))
	assert.Equal(t, int32(5), calls.Load())

	reviews := store.Reviews()
	require.Len(t, reviews, 1)
	assert.Equal(t, "r2", reviews[0].ID)
	for _, r := range reviews {
		assert.True(t, r.Approved)
	}
}

func TestStoreLastWriteWins(t *testing.T) {
	t.Run("LoadCompletingLast", func(t *testing.T) {
		gate := make(chan struct{})
		sources := emptySources()
		sources.Categories = categoriesFunc(func(context.Context) ([]models.Category, error) {
			<-gate
			return []models.Category{{ID: "loaded"}}, nil
		})
		sub := newFakeSubscriber()
		store := New(sources, sub)
		defer store.Close()

		done := make(chan error, 1)
		go func() { done <- store.Start(context.Background()) }()
		require.Eventually(t, func() bool { return store.Subscriptions().Len() == 6 }, time.Second, time.Millisecond)

		sub.emit(models.TableCategories, insert(`{"id":"early"}`))
		assert.Equal(t, []string{"early"}, categoryIDs(store.Categories()))
		assert.True(t, store.Loading())

		close(gate)
		require.NoError(t, <-done)
		assert.Equal(t, []string{"loaded"}, categoryIDs(store.Categories()))
		assert.False(t, store.Loading())
	})

	t.Run("EventCompletingLast", func(t *testing.T) {
		sources := emptySources()
		sources.Categories = categoriesFunc(func(context.Context) ([]models.Category, error) {
			return []models.Category{{ID: "c3"}, {ID: "c2"}, {ID: "c1"}}, nil
		})
		sub := newFakeSubscriber()
		store := startStore(t, sources, sub)
		require.Equal(t, []string{"c3", "c2", "c1"}, categoryIDs(store.Categories()))

		sub.emit(models.TableCategories, insert(`{"id":"c4","name":"Sets"}`))
		categories := store.Categories()
		require.Len(t, categories, 4)
		assert.Equal(t, []string{"c4", "c3", "c2", "c1"}, categoryIDs(categories))
		assert.Equal(t, "Sets", categories[0].Name)
	})

	t.Run("EventOverwritesOptimisticSet", func(t *testing.T) {
		sub := newFakeSubscriber()
		store := startStore(t, emptySources(), sub)

		store.SetCategories([]models.Category{{ID: "c1", Name: "optimistic"}})
		assert.Equal(t, "optimistic", store.Categories()[0].Name)

		sub.emit(models.TableCategories, update(`{"id":"c1","name":"server"}`))
		assert.Equal(t, "server", store.Categories()[0].Name)
	})
}

func TestStoreRefresh(t *testing.T) {
	var round atomic.Int32
	sources := emptySources()
	sources.Items = itemsFunc(func(context.Context) ([]models.CatalogItem, error) {
		n := round.Add(1)
		items := make([]models.CatalogItem, n)
		for i := range items {
			items[i] = models.CatalogItem{ID: string(rune('a' + i))}
		}
		return items, nil
	})
	store := startStore(t, sources, nil)
	assert.Len(t, store.Items(), 1)

	require.NoError(t, store.Refresh(context.Background()))
	assert.Len(t, store.Items(), 2)

	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Refresh(context.Background()), ErrClosed)
}

func TestStoreTeardown(t *testing.T) {
	t.Run("LateLoadDoesNotMutate", func(t *testing.T) {
		gate := make(chan struct{})
		sources := Sources{
			Items: itemsFunc(func(context.Context) ([]models.CatalogItem, error) {
				<-gate
				return []models.CatalogItem{{ID: "i1"}}, nil
			}),
			Bookings: bookingsFunc(func(context.Context) ([]models.Booking, error) {
				<-gate
				return []models.Booking{{ID: "b1"}}, nil
			}),
			Categories: categoriesFunc(func(context.Context) ([]models.Category, error) {
				<-gate
				return []models.Category{{ID: "c1"}}, nil
			}),
			Reviews: reviewsFunc(func(context.Context) ([]models.Review, error) {
				<-gate
				return []models.Review{{ID: "r1", Approved: true}}, nil
			}),
			About: aboutFunc(func(context.Context) (*models.AboutInfo, error) {
				<-gate
				return &models.AboutInfo{ID: "a1"}, nil
			}),
			AppInfo: appInfoFunc(func(context.Context) (*models.AppInfo, error) {
				<-gate
				return nil, errors.New("late failure")
			}),
		}
		reports := &reportLog{}
		sub := newFakeSubscriber()
		store := New(sources, sub, WithErrorReporter(reports.reporter()))

		var notices atomic.Int32
		store.OnChange(func(events.CollectionChange) { notices.Add(1) })

		done := make(chan error, 1)
		go func() { done <- store.Start(context.Background()) }()
		require.Eventually(t, func() bool { return store.Subscriptions().Len() == 6 }, time.Second, time.Millisecond)
		itemsHandler := sub.handler(models.TableItems)

		require.NoError(t, store.Close())
		assert.Equal(t, 0, sub.subscribed())
		assert.Equal(t, 1, sub.closed[models.TableItems])

		close(gate)
		require.NoError(t, <-done)
		itemsHandler(insert(`{"id":"i9"}`))
		store.SetItems([]models.CatalogItem{{ID: "i8"}})

		assert.Equal(t, int32(0), notices.Load())
		assert.Empty(t, store.Items())
		assert.Empty(t, store.Bookings())
		assert.Empty(t, store.Categories())
		assert.Empty(t, store.Reviews())
		assert.Nil(t, store.About())
		assert.Empty(t, reports.all())
		assert.NoError(t, store.Close())
	})

	t.Run("CancelledListenerStopsReceiving", func(t *testing.T) {
		sub := newFakeSubscriber()
		store := startStore(t, emptySources(), sub)

		var got []events.CollectionChange
		cancel := store.OnChange(func(c events.CollectionChange) { got = append(got, c) })

		sub.emit(models.TableItems, insert(`{"id":"i1"}`))
		cancel()
		sub.emit(models.TableItems, insert(`{"id":"i2"}`))

		require.Len(t, got, 1)
		assert.Equal(t, CollectionItems, got[0].Collection)
		assert.Equal(t, events.ReasonInsert, got[0].Reason)
		assert.Equal(t, "i1", got[0].ID)
		assert.Equal(t, 1, got[0].Size)
	})
}

func TestStoreGettersReturnCopies(t *testing.T) {
	store := startStore(t, emptySources(), nil)
	store.SetItems([]models.CatalogItem{{ID: "i1", Title: "Ring"}})
	store.SetAbout(&models.AboutInfo{ID: "a1", Content: "x"})

	items := store.Items()
	items[0].Title = "changed"
	about := store.About()
	about.Content = "changed"

	assert.Equal(t, "Ring", store.Items()[0].Title)
	assert.Equal(t, "x", store.About().Content)

	store.SetAppInfo(nil)
	assert.Nil(t, store.AppInfo())
	store.SetReviews(nil)
	assert.NotNil(t, store.Reviews())
	store.SetBookings([]models.Booking{{ID: "b1"}})
	assert.Len(t, store.Bookings(), 1)
}
