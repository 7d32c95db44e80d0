package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"breedserve/internal/apperr"
	"breedserve/pkg/types"
)

// imageField is the multipart field carrying the image.
const imageField = "image"

// readImage extracts image bytes from a multipart form (field "image") or a
// raw image/* or application/octet-stream body. Optional quality fields
// (width, height, blur_score) are read from the form when present.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, *types.ImageQuality, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mt == "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return nil, nil, bodyError(err)
		}
		f, _, err := r.FormFile(imageField)
		if err != nil {
			return nil, nil, apperr.New(apperr.InvalidInput, "no image provided (multipart field %q)", imageField)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, nil, bodyError(err)
		}
		if len(data) == 0 {
			return nil, nil, apperr.New(apperr.InvalidInput, "empty image")
		}
		return data, qualityFromForm(r), nil
	case strings.HasPrefix(mt, "image/"), mt == "application/octet-stream":
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, nil, bodyError(err)
		}
		if len(data) == 0 {
			return nil, nil, apperr.New(apperr.InvalidInput, "empty image")
		}
		return data, nil, nil
	default:
		return nil, nil, apperr.New(apperr.InvalidInput, "Content-Type must be multipart/form-data or image/*")
	}
}

func bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return apperr.New(apperr.InvalidInput, "image exceeds %d bytes", mbe.Limit)
	}
	return apperr.Wrap(apperr.InvalidInput, err, "read upload")
}

func qualityFromForm(r *http.Request) *types.ImageQuality {
	width, werr := strconv.Atoi(r.FormValue("width"))
	height, herr := strconv.Atoi(r.FormValue("height"))
	blur, berr := strconv.ParseFloat(r.FormValue("blur_score"), 64)
	if werr != nil && herr != nil && berr != nil {
		return nil
	}
	return &types.ImageQuality{Width: width, Height: height, BlurScore: blur}
}
