package storage

import (
	"context"
	"encoding/json"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		size     int64
		wantErr  bool
	}{
		{"jpeg ok", "char.jpeg", 1024, false},
		{"png ok", "scan.png", MaxUploadBytes, false},
		{"oversize", "scan.png", MaxUploadBytes + 1, true},
		{"executable blocked", "payload.exe", 10, true},
		{"script blocked", "run.sh", 10, true},
		{"unknown extension", "notes.txt", 10, true},
		{"uppercase extension ok", "PHOTO.JPG", 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.filename, tt.size)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateUpload(%q, %d) = %v, wantErr %v", tt.filename, tt.size, err, tt.wantErr)
			}
		})
	}
}

func TestSubmitURL(t *testing.T) {
	c := NewClient("https://blob.example/")
	if got := c.SubmitURL(); got != "https://blob.example/files/upload" {
		t.Fatalf("SubmitURL = %q", got)
	}
}

func TestUploadImage(t *testing.T) {
	var gotField, gotFilename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/files/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Errorf("parse content type: %v", err)
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		part, err := mr.NextPart()
		if err != nil {
			t.Errorf("read part: %v", err)
		} else {
			gotField = part.FormName()
			gotFilename = part.FileName()
		}
		_ = json.NewEncoder(w).Encode(UploadResult{FileID: "f1", URL: "https://blob.example/f1", Size: 3, ContentType: "image/png"})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	res, err := c.UploadImage(context.Background(), []byte("png"), "char.png")
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	if res.FileID != "f1" {
		t.Fatalf("file id = %q", res.FileID)
	}
	if gotField != "file" || gotFilename != "char.png" {
		t.Fatalf("form part = %q/%q, want file/char.png", gotField, gotFilename)
	}
}

func TestUploadImageRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusInsufficientStorage)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	if _, err := c.UploadImage(context.Background(), []byte("png"), "char.png"); err == nil || !strings.Contains(err.Error(), "507") {
		t.Fatalf("error = %v, want status surfaced", err)
	}
}
