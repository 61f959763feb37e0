package validators

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"slices"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/viper"
)

var (
	ErrFileTooLarge        = errors.New("file too large")
	ErrFileNameTooLong     = errors.New("file name is too long")
	ErrFileNameInvalid     = errors.New("invalid file name")
	ErrFileTypeUnsupported = errors.New("unsupported file type")
	ErrNoFile              = errors.New("no file provided")
)

// Leaves room for the -WxH and -N suffixes of derived files
const maxFileNameSize = 200

// FileValidator checks an uploaded file against upload.max_size and
// upload.allowed_types. The returned file is rewound and the detected mime
// type is returned alongside it.
func FileValidator(fh *multipart.FileHeader) (int, multipart.File, string, error) {
	if fh == nil {
		return http.StatusBadRequest, nil, "", ErrNoFile
	}

	if len(fh.Filename) > maxFileNameSize {
		return http.StatusBadRequest, nil, "", ErrFileNameTooLong
	}

	if name := path.Base(fh.Filename); name == "." || name == "/" || name[0] == '.' {
		return http.StatusBadRequest, nil, "", ErrFileNameInvalid
	}

	maxFileSize := viper.GetInt64("upload.max_size")
	if maxFileSize > 0 && fh.Size > maxFileSize {
		return http.StatusRequestEntityTooLarge, nil, "", ErrFileTooLarge
	}

	// Never trust the header, sniff the content
	f, err := fh.Open()
	if err != nil {
		return http.StatusInternalServerError, nil, "", err
	}

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return http.StatusInternalServerError, nil, "", err
	}

	allowed := viper.GetStringSlice("upload.allowed_types")
	if len(allowed) > 0 && !slices.ContainsFunc(allowed, func(t string) bool { return mime.Is(t) }) {
		f.Close()
		return http.StatusBadRequest, nil, "", ErrFileTypeUnsupported
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return http.StatusInternalServerError, nil, "", err
	}

	return 0, f, mime.String(), nil
}
