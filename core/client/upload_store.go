package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"
	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/model"
)

var ErrUploadNotFound = errors.New("upload not found")

const uploadsPrefix = "/uploads"

// UploadStore remembers uploads made from this machine, keyed by record address.
type UploadStore struct {
	Uploads ds.Datastore
}

func NewUploadStore(dsPath string) (*UploadStore, error) {
	p := fmt.Sprintf("%s/uploads", dsPath)
	store, err := dslvl.NewDatastore(p, nil)
	if err != nil {
		return nil, err
	}

	return &UploadStore{
		Uploads: store,
	}, nil
}

func uploadKey(chunkHolder model.Address) ds.Key {
	return ds.NewKey(uploadsPrefix).ChildString(chunkHolder.String())
}

func (u *UploadStore) Get(ctx context.Context, chunkHolder model.Address) (*model.Upload, error) {
	b, err := u.Uploads.Get(ctx, uploadKey(chunkHolder))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, errors.Wrapf(ErrUploadNotFound, "%s", chunkHolder)
	}
	if err != nil {
		return nil, err
	}

	var upload model.Upload
	err = json.Unmarshal(b, &upload)
	if err != nil {
		return nil, err
	}

	return &upload, nil
}

func (u *UploadStore) Put(ctx context.Context, upload model.Upload) error {
	b, err := json.Marshal(upload)
	if err != nil {
		return err
	}

	return u.Uploads.Put(ctx, uploadKey(upload.ChunkHolder), b)
}

func (u *UploadStore) Delete(ctx context.Context, chunkHolder model.Address) error {
	return u.Uploads.Delete(ctx, uploadKey(chunkHolder))
}

// All returns every tracked upload, oldest first.
func (u *UploadStore) All(ctx context.Context) ([]*model.Upload, error) {
	q := dsq.Query{Prefix: uploadsPrefix}
	uploads := make([]*model.Upload, 0)

	res, err := u.Uploads.Query(ctx, q)
	if err != nil {
		return uploads, err
	}
	defer res.Close()

	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}
		if r.Error != nil {
			return uploads, r.Error
		}

		var upload model.Upload
		err = json.Unmarshal(r.Value, &upload)
		if err != nil {
			return uploads, err
		}
		uploads = append(uploads, &upload)
	}

	sort.Slice(uploads, func(i, j int) bool {
		return uploads[i].CreatedAt.Before(uploads[j].CreatedAt)
	})

	return uploads, nil
}

func (u *UploadStore) Close() error {
	return u.Uploads.Close()
}
