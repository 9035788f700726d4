package storage

import (
	"net/http"
	"os"
)

// FileHandler serves the files under basePath read-only.
// Directory paths answer 404 so blob keys cannot be enumerated.
func FileHandler(basePath string) http.Handler {
	return http.FileServer(filesOnly{http.Dir(basePath)})
}

// filesOnly hides directories of the wrapped file system
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}

	return file, nil
}
