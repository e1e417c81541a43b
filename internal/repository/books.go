package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/listenupapp/shelfsync/internal/domain"
	domainerrors "github.com/listenupapp/shelfsync/internal/errors"
	"github.com/listenupapp/shelfsync/internal/querycache"
	"github.com/listenupapp/shelfsync/internal/syncengine"
)

// coverLookups bounds concurrent cover searches.
const coverLookups = 4

// Books reads and writes books.
type Books struct {
	base
	covers   CoverLookup
	uploader Uploader
}

// NewBooks creates the book repository.
func NewBooks(d Deps, logger *slog.Logger) *Books {
	return &Books{
		base:     newBase(d, logger),
		covers:   d.Covers,
		uploader: d.Uploader,
	}
}

// FetchAll loads the book list from the server, falling back to the local
// copy. Queued writes are applied on top of either source.
func (b *Books) FetchAll(ctx context.Context) ([]domain.Book, error) {
	v, err := b.cache.Fetch(ctx, querycache.BooksList(), b.loadAll)
	if err != nil {
		return nil, err
	}
	books, _ := v.([]domain.Book)
	return books, nil
}

// ReadAll returns the cached book list and refreshes it in the background
// when stale. Use querycache.Value[[]domain.Book] on the result.
func (b *Books) ReadAll() querycache.Result {
	return b.cache.Read(querycache.BooksList(), b.loadAll)
}

func (b *Books) loadAll(ctx context.Context) (any, error) {
	books, err := b.remote.ListBooks(ctx)
	if err == nil {
		merged := domain.ApplyPendingBooks(books, b.pending(ctx))
		if err := b.local.SaveBooks(context.WithoutCancel(ctx), merged); err != nil {
			b.logger.Warn("failed to persist book list", "error", err)
		}
		return merged, nil
	}

	b.logger.Info("book list unavailable from server, using local copy", "error", err)
	local, lerr := b.local.GetBooks(ctx)
	if lerr != nil {
		return nil, fallback(err, lerr, "books")
	}
	return domain.ApplyPendingBooks(local, b.pending(ctx)), nil
}

// FetchOne loads a book, falling back to the local copy. A temporary id whose
// create has been replayed is translated to the server id first.
func (b *Books) FetchOne(ctx context.Context, bookID int64) (domain.Book, error) {
	bookID = b.resolve(ctx, domain.KindBook, bookID)
	v, err := b.cache.Fetch(ctx, querycache.BookDetail(bookID), b.loadOne(bookID))
	if err != nil {
		return domain.Book{}, err
	}
	book, _ := v.(domain.Book)
	return book, nil
}

// ReadOne returns the cached book and refreshes it in the background when stale.
func (b *Books) ReadOne(bookID int64) querycache.Result {
	return b.cache.Read(querycache.BookDetail(bookID), b.loadOne(bookID))
}

func (b *Books) loadOne(bookID int64) querycache.Fetcher {
	return func(ctx context.Context) (any, error) {
		book, err := b.remote.GetBook(ctx, bookID)
		if err == nil {
			merged, ok := domain.ApplyPendingBook(&book, bookID, b.pending(ctx))
			if !ok {
				return nil, domainerrors.NotFoundf("book %d is being deleted", bookID)
			}
			if err := b.local.SaveBook(context.WithoutCancel(ctx), merged); err != nil {
				b.logger.Warn("failed to persist book", "book_id", bookID, "error", err)
			}
			return merged, nil
		}

		b.logger.Info("book unavailable from server, using local copy", "book_id", bookID, "error", err)
		var found *domain.Book
		local, lerr := b.local.GetBook(ctx, bookID)
		switch {
		case lerr == nil:
			found = &local
		case !errors.Is(lerr, domainerrors.ErrNotFound):
			return nil, fallback(err, lerr, "book")
		}
		if merged, ok := domain.ApplyPendingBook(found, bookID, b.pending(ctx)); ok {
			return merged, nil
		}
		return nil, fallback(err, domainerrors.NotFoundf("book %d", bookID), "book")
	}
}

// Update replaces a book. The cache shows the new state immediately; it is
// restored if the write fails outright, and kept when the write is queued.
func (b *Books) Update(ctx context.Context, book domain.Book) (domain.Book, error) {
	if err := b.validator.Validate(book); err != nil {
		return domain.Book{}, err
	}

	var snaps snapshots
	snaps.add(b.cache.OptimisticUpdate(querycache.BookDetail(book.ID), func(any, bool) any {
		return book.Clone()
	}), true)
	snaps.add(patchList(b.cache, querycache.BooksList(), func(list []domain.Book) []domain.Book {
		return upsertBook(list, book)
	}))

	res, err := b.engine.Submit(ctx, syncengine.UpdateBook(book))
	if err != nil {
		snaps.rollback(b.cache)
		return domain.Book{}, err
	}

	snaps.commit(b.cache)
	b.confirm(*res.Book, book.ID)
	return *res.Book, nil
}

// ToggleField flips a boolean field and saves the whole book.
func (b *Books) ToggleField(ctx context.Context, book domain.Book, field domain.ToggleField) (domain.Book, error) {
	toggled, err := book.Toggled(field)
	if err != nil {
		return domain.Book{}, domainerrors.Validation(err.Error())
	}
	return b.Update(ctx, toggled)
}

// Create adds a book. Offline the returned book carries a temporary id.
func (b *Books) Create(ctx context.Context, book domain.Book) (domain.Book, error) {
	book.ID = 0
	if err := b.validator.Validate(book); err != nil {
		return domain.Book{}, err
	}

	res, err := b.engine.Submit(ctx, syncengine.CreateBook(book))
	if err != nil {
		return domain.Book{}, err
	}
	b.confirm(*res.Book, res.Book.ID)
	return *res.Book, nil
}

// Delete removes a book.
func (b *Books) Delete(ctx context.Context, bookID int64) error {
	var snaps snapshots
	snaps.add(patchList(b.cache, querycache.BooksList(), func(list []domain.Book) []domain.Book {
		if i := domain.IndexBook(list, bookID); i >= 0 {
			list = append(list[:i], list[i+1:]...)
		}
		return list
	}))

	if _, err := b.engine.Submit(ctx, syncengine.DeleteBook(bookID)); err != nil {
		snaps.rollback(b.cache)
		return err
	}

	snaps.commit(b.cache)
	b.cache.Invalidate(querycache.BookDetail(bookID))
	b.cache.Invalidate(querycache.NotesList(bookID))
	b.cache.Invalidate(querycache.BooksList())
	return nil
}

// confirm stores the acknowledged (or queued) book in the cache. sentID is the
// id the caller used, which differs from book.ID after a create.
func (b *Books) confirm(book domain.Book, sentID int64) {
	b.cache.Set(querycache.BookDetail(book.ID), book)
	if sentID != book.ID {
		b.cache.Invalidate(querycache.BookDetail(sentID))
	}
	patchList(b.cache, querycache.BooksList(), func(list []domain.Book) []domain.Book {
		return upsertBook(list, book)
	})
	b.cache.Invalidate(querycache.BooksList())
}

func upsertBook(list []domain.Book, book domain.Book) []domain.Book {
	if i := domain.IndexBook(list, book.ID); i >= 0 {
		list[i] = book.Clone()
		return list
	}
	return append(list, book.Clone())
}

// UpdateMissingCovers looks up a cover for every book without one and saves
// the books a cover was found for. Lookup failures do not stop the others;
// they are joined into the returned error.
func (b *Books) UpdateMissingCovers(ctx context.Context, books []domain.Book) ([]domain.Book, error) {
	var (
		mu      sync.Mutex
		found   = make([]*domain.Book, len(books))
		failure []error
	)

	g := new(errgroup.Group)
	g.SetLimit(coverLookups)
	for i, book := range books {
		if book.HasCover() {
			continue
		}
		g.Go(func() error {
			url, ok, err := b.covers.FindCover(ctx, book.Name)
			if err == nil && ok {
				var updated domain.Book
				updated, err = b.Update(ctx, book.WithCover(url))
				if err == nil {
					found[i] = &updated
				}
			}
			if err != nil {
				b.logger.Warn("cover update failed", "book_id", book.ID, "error", err)
				mu.Lock()
				failure = append(failure, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	var updated []domain.Book
	for _, u := range found {
		if u != nil {
			updated = append(updated, *u)
		}
	}
	return updated, errors.Join(failure...)
}

// EditionCount returns the number of known editions of book. Results are
// cached per book.
func (b *Books) EditionCount(ctx context.Context, book domain.Book) (int, error) {
	key := querycache.EditionCount(book.ID)
	if res, ok := b.cache.Peek(key); ok && !res.Stale {
		if n, ok := querycache.Value[int](res); ok {
			return n, nil
		}
	}

	v, err := b.cache.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return b.covers.EditionCount(ctx, book.Name, book.Author)
	})
	if err != nil {
		return 0, err
	}
	n, _ := v.(int)
	return n, nil
}

// UploadCover uploads an image and saves its URL as the book's cover.
func (b *Books) UploadCover(ctx context.Context, book domain.Book, name string, image io.Reader) (domain.Book, error) {
	up, err := b.uploader.Upload(ctx, name, image)
	if err != nil {
		return domain.Book{}, err
	}
	return b.Update(ctx, book.WithCover(up.URL))
}
