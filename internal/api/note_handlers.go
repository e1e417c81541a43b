package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/shelfsync/internal/domain"
)

func (s *Server) registerNoteRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listNotes",
		Method:      http.MethodGet,
		Path:        "/books/{id}/notes",
		Summary:     "List notes",
		Description: "Returns the notes of a book in creation order",
		Tags:        []string{"Notes"},
	}, s.handleListNotes)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createNote",
		Method:        http.MethodPost,
		Path:          "/books/{id}/notes",
		Summary:       "Create note",
		Description:   "Adds a note to a book",
		Tags:          []string{"Notes"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateNote)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteNote",
		Method:      http.MethodDelete,
		Path:        "/books/{id}/notes/{noteId}",
		Summary:     "Delete note",
		Tags:        []string{"Notes"},
	}, s.handleDeleteNote)
}

// === DTOs ===

// NoteResponse contains note data in API responses.
type NoteResponse struct {
	ID      int64  `json:"id" doc:"Note ID"`
	BookID  int64  `json:"bookId" doc:"Owning book"`
	Content string `json:"content" doc:"Note text"`
	DateISO string `json:"dateISO" doc:"Creation time, UTC with milliseconds"`
}

func noteResponse(n domain.Note) NoteResponse {
	return NoteResponse{ID: n.ID, BookID: n.BookID, Content: n.Content, DateISO: n.DateISO}
}

// ListNotesOutput wraps the note list for Huma.
type ListNotesOutput struct {
	Body []NoteResponse
}

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Content string `json:"content" doc:"Note text"`
	DateISO string `json:"dateISO,omitempty" doc:"Creation time; defaults to now"`
}

// CreateNoteInput wraps the create note request for Huma.
type CreateNoteInput struct {
	ID             int64  `path:"id" doc:"Book ID"`
	IdempotencyKey string `header:"Idempotency-Key" doc:"Client mutation ID; repeats return the original note"`
	Body           CreateNoteRequest
}

// NoteOutput wraps a note for Huma.
type NoteOutput struct {
	Body NoteResponse
}

// DeleteNoteInput contains parameters for deleting a note.
type DeleteNoteInput struct {
	ID             int64  `path:"id" doc:"Book ID"`
	NoteID         int64  `path:"noteId" doc:"Note ID"`
	IdempotencyKey string `header:"Idempotency-Key" doc:"Client mutation ID"`
}

// === Handlers ===

func (s *Server) handleListNotes(ctx context.Context, input *BookIDInput) (*ListNotesOutput, error) {
	notes, err := s.books.ListNotes(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}

	resp := make([]NoteResponse, len(notes))
	for i, n := range notes {
		resp[i] = noteResponse(n)
	}
	return &ListNotesOutput{Body: resp}, nil
}

func (s *Server) handleCreateNote(ctx context.Context, input *CreateNoteInput) (*NoteOutput, error) {
	note, err := s.books.CreateNote(ctx, input.ID, domain.NoteInput{
		Content: input.Body.Content,
		DateISO: input.Body.DateISO,
	}, input.IdempotencyKey)
	if err != nil {
		return nil, apiError(err)
	}
	return &NoteOutput{Body: noteResponse(note)}, nil
}

func (s *Server) handleDeleteNote(ctx context.Context, input *DeleteNoteInput) (*struct{}, error) {
	if err := s.books.DeleteNote(ctx, input.ID, input.NoteID); err != nil {
		return nil, apiError(err)
	}
	return nil, nil
}
