package providers

import (
	"context"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/listenupapp/shelfsync/internal/assets"
	"github.com/listenupapp/shelfsync/internal/config"
	"github.com/listenupapp/shelfsync/internal/covers"
	"github.com/listenupapp/shelfsync/internal/logger"
	"github.com/listenupapp/shelfsync/internal/repository"
	"github.com/listenupapp/shelfsync/internal/validation"
)

// ProvideCovers provides the OpenLibrary cover lookup client.
func ProvideCovers(i do.Injector) (*covers.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return covers.NewClient(covers.Options{
		SearchURL: cfg.Covers.OpenLibraryURL,
		CoversURL: cfg.Covers.CoversURL,
	}, log.Component("covers")), nil
}

// ProvideUploader provides the cover image upload client.
func ProvideUploader(i do.Injector) (*assets.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return assets.NewClient(cfg.Remote.BaseURL, &http.Client{Timeout: cfg.Remote.Timeout}, log.Component("assets")), nil
}

func repositoryDeps(i do.Injector) repository.Deps {
	return repository.Deps{
		Remote:    do.MustInvoke[*RemoteHandle](i).Client,
		Local:     do.MustInvoke[*StoreHandle](i).Store,
		Engine:    do.MustInvoke[*EngineHandle](i).Engine,
		Cache:     do.MustInvoke[*CacheHandle](i).Cache,
		Validator: do.MustInvoke[*validation.Validator](i),
		Covers:    do.MustInvoke[*covers.Client](i),
		Uploader:  do.MustInvoke[*assets.Client](i),
	}
}

// ProvideBooks provides the books repository.
func ProvideBooks(i do.Injector) (*repository.Books, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return repository.NewBooks(repositoryDeps(i), log.Component("books")), nil
}

// ProvideNotes provides the notes repository.
func ProvideNotes(i do.Injector) (*repository.Notes, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return repository.NewNotes(repositoryDeps(i), log.Component("notes")), nil
}

// WarmLibrary loads the book list into the cache and fills in covers the
// OpenLibrary lookup can find. Failures are logged; the daemon keeps running
// on whatever the local store holds.
func WarmLibrary(ctx context.Context, i do.Injector) {
	log := do.MustInvoke[*logger.Logger](i)
	books := do.MustInvoke[*repository.Books](i)

	list, err := books.FetchAll(ctx)
	if err != nil {
		log.Warn("Initial library load failed", "error", err)
		return
	}
	log.Info("Library loaded", "books", len(list))

	if _, err := books.UpdateMissingCovers(ctx, list); err != nil {
		log.Warn("Some covers could not be updated", "error", err)
	}
}
