package feed

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

const acceptJSON = "application/json"

type serviceInstanceData struct {
	Parameters struct {
		PaginationSize int `json:"pagination_size"`
	} `json:"parameters"`
}

// FetchPaginationSize reads the number of entries per feed page from the
// instance document of the feed service.
func FetchPaginationSize(ctx context.Context, downloader *Downloader, serviceURL string) (int, error) {
	resp, err := downloader.Download(ctx, serviceURL, acceptJSON)
	if err != nil {
		return 0, errors.Wrap(err, "error downloading the service instance document")
	}
	defer resp.Body.Close()

	var data serviceInstanceData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, errors.Wrap(err, "error decoding the service instance document")
	}

	if data.Parameters.PaginationSize <= 0 {
		return 0, errors.Errorf("invalid pagination size %d", data.Parameters.PaginationSize)
	}

	return data.Parameters.PaginationSize, nil
}
