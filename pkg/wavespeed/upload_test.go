package wavespeed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestUpload_Success(t *testing.T) {
	var gotField, gotFilename, gotData string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/media/upload/binary" {
			t.Errorf("unexpected upload path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		for field, headers := range r.MultipartForm.File {
			gotField = field
			gotFilename = headers[0].Filename
			f, _ := headers[0].Open()
			data, _ := io.ReadAll(f)
			gotData = string(data)
			f.Close()
		}
		w.Write([]byte(`{"code": 200, "data": {"download_url": "https://cdn.example/u/img.png"}}`))
	}))

	url, err := c.Upload(context.Background(), bytes.NewReader([]byte("png-bytes")))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if url != "https://cdn.example/u/img.png" {
		t.Fatalf("unexpected URL %q", url)
	}
	if gotField != "file" || gotFilename != "image.png" {
		t.Fatalf("unexpected form field %q filename %q", gotField, gotFilename)
	}
	if gotData != "png-bytes" {
		t.Fatalf("uploaded bytes mangled: %q", gotData)
	}
}

func TestUpload_HTTPFailure(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	_, err := c.Upload(context.Background(), strings.NewReader("too big"))
	var upErr *UploadError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UploadError, got %v", err)
	}
	if upErr.Status != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status to be carried, got %+v", upErr)
	}
	if want := "Upload failed: 413"; err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestUpload_MissingDownloadURL(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": 200, "data": {}}`))
	}))
	_, err := c.Upload(context.Background(), strings.NewReader("png"))
	var upErr *UploadError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UploadError, got %v", err)
	}
	if want := "No download URL in response"; err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestUpload_NoEnvelope(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"download_url": "https://cdn.example/raw.png"}`))
	}))
	_, err := c.Upload(context.Background(), strings.NewReader("png"))
	var upErr *UploadError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UploadError for enveloped-less body, got %v", err)
	}
}

func TestUpload_EnvelopeFailure(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": 500, "message": "storage unavailable"}`))
	}))
	_, err := c.Upload(context.Background(), strings.NewReader("png"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "storage unavailable" {
		t.Fatalf("unexpected APIError %+v", apiErr)
	}
}
