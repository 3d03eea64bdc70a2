package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/drive"
	"github.com/andresuchdata/merchops/internal/pipeline"
	"github.com/andresuchdata/merchops/internal/repository"
	"github.com/andresuchdata/merchops/internal/source"
	"github.com/andresuchdata/merchops/internal/storage"
	"github.com/rs/zerolog/log"
)

// Frame file names shared by every loader
const (
	HistoryFile = "history.csv"
	FutureFile  = "future.csv"
)

// FrameLoader produces the inputs of one engine run. A missing future frame is
// not an error; the run then skips the forecast stage.
type FrameLoader interface {
	Load(ctx context.Context) (pipeline.Inputs, error)
}

// CSVLoader reads history.csv and the optional future.csv from a directory
type CSVLoader struct {
	Dir string
}

func (l CSVLoader) Load(ctx context.Context) (pipeline.Inputs, error) {
	var in pipeline.Inputs
	history, err := source.ReadFrameFile(filepath.Join(l.Dir, HistoryFile), source.History)
	if err != nil {
		return in, err
	}
	in.History = history

	futurePath := filepath.Join(l.Dir, FutureFile)
	if _, err := os.Stat(futurePath); err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", futurePath).Msg("no future frame, forecast stage will be skipped")
			return in, nil
		}
		return in, err
	}
	if in.Future, err = source.ReadFrameFile(futurePath, source.Future); err != nil {
		return in, err
	}
	return in, nil
}

// ObjectStoreLoader downloads frames/<name> from object storage into Dir, then
// reads them like CSVLoader.
type ObjectStoreLoader struct {
	store storage.ObjectStorage
	dir   string
}

func NewObjectStoreLoader(store storage.ObjectStorage, dir string) *ObjectStoreLoader {
	return &ObjectStoreLoader{store: store, dir: dir}
}

func (l *ObjectStoreLoader) Load(ctx context.Context) (pipeline.Inputs, error) {
	objects, err := l.store.ListObjects(ctx, "frames/")
	if err != nil {
		return pipeline.Inputs{}, err
	}
	present := make(map[string]bool, len(objects))
	for _, o := range objects {
		present[path.Base(o.Key)] = true
	}
	if !present[HistoryFile] {
		return pipeline.Inputs{}, domain.WrapDataError("load", domain.ErrEmptyInput, "object storage has no frames/%s", HistoryFile)
	}

	// stale local copies must not stand in for frames removed remotely
	if err := os.Remove(filepath.Join(l.dir, FutureFile)); err != nil && !os.IsNotExist(err) {
		return pipeline.Inputs{}, fmt.Errorf("failed to remove stale future frame: %w", err)
	}
	for _, name := range []string{HistoryFile, FutureFile} {
		if !present[name] {
			continue
		}
		if err := l.store.DownloadObject(ctx, path.Join("frames", name), filepath.Join(l.dir, name)); err != nil {
			return pipeline.Inputs{}, err
		}
	}
	return CSVLoader{Dir: l.dir}.Load(ctx)
}

// DriveLoader fetches frames from a Google Drive folder. Spreadsheets are converted to CSV.
type DriveLoader struct {
	downloader *drive.Downloader
	dir        string
}

func NewDriveLoader(d *drive.Downloader, dir string) *DriveLoader {
	return &DriveLoader{downloader: d, dir: dir}
}

func (l *DriveLoader) Load(ctx context.Context) (pipeline.Inputs, error) {
	var in pipeline.Inputs
	historyPath, err := l.downloader.Fetch(ctx, HistoryFile, l.dir)
	if err != nil {
		return in, fmt.Errorf("fetch history frame: %w", err)
	}
	if in.History, err = source.ReadFrameFile(historyPath, source.History); err != nil {
		return in, err
	}

	futurePath, err := l.downloader.Fetch(ctx, FutureFile, l.dir)
	if err != nil {
		if errors.Is(err, drive.ErrFileNotFound) {
			log.Info().Msg("drive: no future frame, forecast stage will be skipped")
			return in, nil
		}
		return in, fmt.Errorf("fetch future frame: %w", err)
	}
	if in.Future, err = source.ReadFrameFile(futurePath, source.Future); err != nil {
		return in, err
	}
	return in, nil
}

// RepositoryLoader reads both frames from the feature_frame table
type RepositoryLoader struct {
	repo repository.FrameRepository
}

func NewRepositoryLoader(repo repository.FrameRepository) *RepositoryLoader {
	return &RepositoryLoader{repo: repo}
}

func (l *RepositoryLoader) Load(ctx context.Context) (pipeline.Inputs, error) {
	var in pipeline.Inputs
	history, err := l.repo.LoadFrame(ctx, source.History)
	if err != nil {
		return in, err
	}
	in.History = history

	future, err := l.repo.LoadFrame(ctx, source.Future)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyInput) {
			return in, nil
		}
		return in, err
	}
	in.Future = future
	return in, nil
}
