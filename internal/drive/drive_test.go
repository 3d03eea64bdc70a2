package drive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeDrive struct {
	folders map[string]string
	files   map[string][]*File
	content map[string][]byte
}

func (f *fakeDrive) ListFiles(_ context.Context, folderID string) ([]*File, error) {
	return f.files[folderID], nil
}

func (f *fakeDrive) DownloadFile(_ context.Context, fileID string, w io.Writer) error {
	data, ok := f.content[fileID]
	if !ok {
		return errors.New("no such file")
	}
	_, err := w.Write(data)
	return err
}

func (f *fakeDrive) FindFolderByPath(_ context.Context, path string) (string, error) {
	id, ok := f.folders[path]
	if !ok {
		return "", errors.New("folder not found")
	}
	return id, nil
}

func xlsxBytes(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestDownloader_FetchCSV(t *testing.T) {
	fake := &fakeDrive{
		folders: map[string]string{"merchops/frames": "F1"},
		files:   map[string][]*File{"F1": {{ID: "1", Name: "history.csv"}, {ID: "2", Name: "future.csv"}}},
		content: map[string][]byte{"1": []byte("item_id,store_id,date,units\n")},
	}
	dir := t.TempDir()

	path, err := NewDownloader(fake, "merchops/frames").Fetch(context.Background(), "history.csv", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "history.csv"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "item_id,store_id,date,units\n", string(data))
}

func TestDownloader_FetchConvertsXLSX(t *testing.T) {
	fake := &fakeDrive{
		folders: map[string]string{"": "root"},
		files:   map[string][]*File{"root": {{ID: "x", Name: "History.XLSX"}}},
		content: map[string][]byte{"x": xlsxBytes(t, [][]interface{}{
			{" Item_ID", "store_id", "date", "units"},
			{"A", "CA_1", "2016-01-01", 3},
			{},
			{"B", "CA_1"},
		})},
	}
	dir := t.TempDir()

	path, err := NewDownloader(fake, "").Fetch(context.Background(), "history.csv", dir)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "item_id,store_id,date,units\nA,CA_1,2016-01-01,3\nB,CA_1,,\n", string(data))

	_, err = os.Stat(filepath.Join(dir, "History.XLSX"))
	assert.True(t, os.IsNotExist(err), "temporary spreadsheet is removed")
}

func TestDownloader_FetchErrors(t *testing.T) {
	fake := &fakeDrive{
		folders: map[string]string{"frames": "F1"},
		files:   map[string][]*File{"F1": {{ID: "1", Name: "other.csv"}}},
	}

	_, err := NewDownloader(fake, "frames").Fetch(context.Background(), "history.csv", t.TempDir())
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = NewDownloader(fake, "missing").Fetch(context.Background(), "history.csv", t.TempDir())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrFileNotFound)

	fake.files["F1"] = append(fake.files["F1"], &File{ID: "2", Name: "history.csv"})
	_, err = NewDownloader(fake, "frames").Fetch(context.Background(), "history.csv", t.TempDir())
	assert.Error(t, err, "download failure")
	assert.NotErrorIs(t, err, ErrFileNotFound)
}
