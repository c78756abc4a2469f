package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hyxhhh1013/Myproject-sub000/apperr"
	"github.com/hyxhhh1013/Myproject-sub000/media"
	"github.com/hyxhhh1013/Myproject-sub000/services"
)

const maxFieldBytes = 64 << 10

// uploadForm is a parsed multipart upload: image parts plus plain fields.
type uploadForm struct {
	files  []services.Upload
	fields map[string][]string
}

// readUploadForm streams the multipart body, keeping at most maxFiles parts
// named fileField. Each file must be an image of at most maxBytes.
func readUploadForm(w http.ResponseWriter, r *http.Request, fileField string, maxFiles int, maxBytes int64) (*uploadForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxFiles)*maxBytes+1<<20)

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, apperr.Validation("invalid multipart form: %v", err)
	}

	form := &uploadForm{fields: make(map[string][]string)}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return nil, apperr.Validation("request body too large")
			}
			return nil, apperr.Validation("malformed upload data")
		}

		name := part.FormName()
		if part.FileName() == "" {
			data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
			part.Close()
			if err != nil {
				return nil, apperr.Validation("malformed field %q", name)
			}
			form.fields[name] = append(form.fields[name], string(data))
			continue
		}

		if name != fileField {
			part.Close()
			continue
		}
		if len(form.files) >= maxFiles {
			part.Close()
			return nil, apperr.Validation("at most %d images can be uploaded at once", maxFiles)
		}

		filename := part.FileName()
		contentType := part.Header.Get("Content-Type")
		if !media.IsImageUpload(filename, contentType) {
			part.Close()
			return nil, apperr.Validation("%s is not an image; only image files can be uploaded", filename)
		}

		data, err := io.ReadAll(io.LimitReader(part, maxBytes+1))
		part.Close()
		if err != nil {
			return nil, apperr.Validation("failed to read %s", filename)
		}
		if int64(len(data)) > maxBytes {
			return nil, apperr.Validation("%s exceeds the %d MB upload limit", filename, maxBytes>>20)
		}
		form.files = append(form.files, services.Upload{Filename: filename, ContentType: contentType, Data: data})
	}

	if len(form.files) == 0 {
		return nil, apperr.Validation("please upload at least one image in field %q", fileField)
	}
	return form, nil
}

func (f *uploadForm) value(name string) string {
	if v := f.fields[name]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func (f *uploadForm) boolValue(name string, def bool) bool {
	switch strings.ToLower(f.value(name)) {
	case "true", "1", "on":
		return true
	case "false", "0", "off":
		return false
	default:
		return def
	}
}

// tags accepts a JSON array, a comma separated list, or repeated fields.
func (f *uploadForm) tags() ([]string, error) {
	var names []string
	for _, raw := range f.fields["tags"] {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "[") {
			var parsed []string
			if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
				return nil, apperr.Validation("tags must be a JSON array of strings")
			}
			names = append(names, parsed...)
			continue
		}
		names = append(names, strings.Split(raw, ",")...)
	}
	return names, nil
}

// options builds the shared ingestion options. orderIndex is only honoured for
// single uploads.
func (f *uploadForm) options(single bool) (services.IngestOptions, error) {
	var opts services.IngestOptions

	rawCategory := f.value("categoryId")
	if rawCategory == "" {
		return opts, apperr.Validation("categoryId is required")
	}
	categoryID, err := strconv.ParseUint(rawCategory, 10, 64)
	if err != nil {
		return opts, apperr.Validation("categoryId must be a number")
	}
	opts.CategoryID = uint(categoryID)

	opts.Title = f.value("title")
	if desc := f.value("description"); desc != "" {
		opts.Description = &desc
	}
	opts.IsFeatured = f.boolValue("isFeatured", false)
	opts.IsVisible = f.boolValue("isVisible", true)

	if opts.Tags, err = f.tags(); err != nil {
		return opts, err
	}

	if raw := f.value("orderIndex"); single && raw != "" {
		order, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || order < 0 {
			return opts, apperr.Validation("orderIndex must be a non-negative number")
		}
		opts.OrderIndex = &order
	}
	return opts, nil
}
