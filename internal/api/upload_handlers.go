package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/listenupapp/shelfsync/internal/assets"
	"github.com/listenupapp/shelfsync/internal/http/response"
)

// multipart overhead allowed on top of the image itself
const uploadSlack = 1 << 20

// registerUploadRoutes mounts the multipart upload endpoint and the static
// file server for stored images. Multipart bodies go through chi directly.
func (s *Server) registerUploadRoutes() {
	if s.uploads == nil {
		return
	}
	s.router.Post("/upload", s.handleUpload)
	s.router.Handle(UploadsPath+"/*", http.StripPrefix(UploadsPath+"/", http.FileServer(http.Dir(s.uploads.Dir()))))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, assets.MaxSize+uploadSlack)

	file, header, err := r.FormFile(assets.FormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(w, "image too large", s.logger)
			return
		}
		response.BadRequest(w, "missing image field", s.logger)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, assets.MaxSize+1))
	if err != nil {
		response.BadRequest(w, "unreadable image", s.logger)
		return
	}

	upload, err := s.uploads.Save(r.Context(), baseURL(r), header.Filename, data)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, upload, s.logger)
}

// baseURL reconstructs the origin the client used to reach us.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}
