package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/shelfsync/internal/domain"
)

func (s *Server) registerBookRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBooks",
		Method:      http.MethodGet,
		Path:        "/books",
		Summary:     "List books",
		Description: "Returns every book in id order",
		Tags:        []string{"Books"},
	}, s.handleListBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBook",
		Method:      http.MethodGet,
		Path:        "/books/{id}",
		Summary:     "Get book",
		Description: "Returns a book by ID",
		Tags:        []string{"Books"},
	}, s.handleGetBook)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createBook",
		Method:        http.MethodPost,
		Path:          "/books",
		Summary:       "Create book",
		Description:   "Creates a book. Replaying a known Idempotency-Key returns the book created the first time.",
		Tags:          []string{"Books"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateBook",
		Method:      http.MethodPut,
		Path:        "/books/{id}",
		Summary:     "Replace book",
		Description: "Replaces a book with the full entity",
		Tags:        []string{"Books"},
	}, s.handleUpdateBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteBook",
		Method:      http.MethodDelete,
		Path:        "/books/{id}",
		Summary:     "Delete book",
		Description: "Deletes a book and its notes",
		Tags:        []string{"Books"},
	}, s.handleDeleteBook)
}

// === DTOs ===

// BookBody is a whole book as sent and returned on the wire.
type BookBody struct {
	ID       int64   `json:"id" required:"false" doc:"Book ID, assigned by the server"`
	Name     string  `json:"name" doc:"Title"`
	Author   string  `json:"author" doc:"Author"`
	Editor   string  `json:"editor" doc:"Publisher"`
	Year     int     `json:"year" doc:"Publication year"`
	Read     bool    `json:"read" required:"false" doc:"Whether the book has been read"`
	Favorite bool    `json:"favorite" required:"false" doc:"Whether the book is a favorite"`
	Rating   int     `json:"rating" required:"false" doc:"Rating from 0 to 5"`
	Cover    *string `json:"cover" required:"false" nullable:"true" doc:"Cover image URL"`
	Theme    string  `json:"theme" required:"false" doc:"Display theme"`
}

func bookBody(b domain.Book) BookBody {
	b = b.Clone()
	return BookBody{
		ID:       b.ID,
		Name:     b.Name,
		Author:   b.Author,
		Editor:   b.Editor,
		Year:     b.Year,
		Read:     b.Read,
		Favorite: b.Favorite,
		Rating:   b.Rating,
		Cover:    b.Cover,
		Theme:    b.Theme,
	}
}

func (b BookBody) toDomain() domain.Book {
	return domain.Book{
		ID:       b.ID,
		Name:     b.Name,
		Author:   b.Author,
		Editor:   b.Editor,
		Year:     b.Year,
		Read:     b.Read,
		Favorite: b.Favorite,
		Rating:   b.Rating,
		Cover:    b.Cover,
		Theme:    b.Theme,
	}.Clone()
}

// ListBooksOutput wraps the book list for Huma.
type ListBooksOutput struct {
	Body []BookBody
}

// BookIDInput identifies a book by path.
type BookIDInput struct {
	ID int64 `path:"id" doc:"Book ID"`
}

// BookOutput wraps a book for Huma.
type BookOutput struct {
	Body BookBody
}

// CreateBookInput wraps the create book request for Huma.
type CreateBookInput struct {
	IdempotencyKey string `header:"Idempotency-Key" doc:"Client mutation ID; repeats return the original book"`
	ClientID       string `header:"X-Client-ID" doc:"Installation ID of the caller"`
	Body           BookBody
}

// UpdateBookInput wraps the update book request for Huma.
type UpdateBookInput struct {
	ID             int64  `path:"id" doc:"Book ID"`
	IdempotencyKey string `header:"Idempotency-Key" doc:"Client mutation ID"`
	Body           BookBody
}

// DeleteBookInput contains parameters for deleting a book.
type DeleteBookInput struct {
	ID             int64  `path:"id" doc:"Book ID"`
	IdempotencyKey string `header:"Idempotency-Key" doc:"Client mutation ID"`
}

// === Handlers ===

func (s *Server) handleListBooks(ctx context.Context, _ *struct{}) (*ListBooksOutput, error) {
	books, err := s.books.ListBooks(ctx)
	if err != nil {
		return nil, apiError(err)
	}

	resp := make([]BookBody, len(books))
	for i, b := range books {
		resp[i] = bookBody(b)
	}
	return &ListBooksOutput{Body: resp}, nil
}

func (s *Server) handleGetBook(ctx context.Context, input *BookIDInput) (*BookOutput, error) {
	book, err := s.books.GetBook(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &BookOutput{Body: bookBody(book)}, nil
}

func (s *Server) handleCreateBook(ctx context.Context, input *CreateBookInput) (*BookOutput, error) {
	book := input.Body.toDomain()
	book.ID = 0

	created, err := s.books.CreateBook(ctx, book, input.IdempotencyKey)
	if err != nil {
		return nil, apiError(err)
	}
	return &BookOutput{Body: bookBody(created)}, nil
}

func (s *Server) handleUpdateBook(ctx context.Context, input *UpdateBookInput) (*BookOutput, error) {
	updated, err := s.books.UpdateBook(ctx, input.ID, input.Body.toDomain())
	if err != nil {
		return nil, apiError(err)
	}
	return &BookOutput{Body: bookBody(updated)}, nil
}

func (s *Server) handleDeleteBook(ctx context.Context, input *DeleteBookInput) (*struct{}, error) {
	if err := s.books.DeleteBook(ctx, input.ID); err != nil {
		return nil, apiError(err)
	}
	return nil, nil
}
