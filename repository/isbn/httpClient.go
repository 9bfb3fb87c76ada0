package isbnrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/CheropS/backend-library/util/httpx"
)

type httpRepo struct {
	apiKey string
	client *http.Client
}

func NewHTTP(apiKey string) Repo { return &httpRepo{apiKey: apiKey, client: httpx.Client()} }

func (r *httpRepo) Lookup(isbn string) (*BookInfo, error) {
	if r.apiKey == "" {
		return nil, errors.New("isbn lookup disabled: no api key")
	}

	req, _ := http.NewRequest("GET", "https://api.api-ninjas.com/v1/books?title="+url.QueryEscape(isbn), nil)
	req.Header.Set("X-Api-Key", r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("isbn lookup failed: %s", resp.Status)
	}

	var out []struct {
		Title     string `json:"title"`
		Author    string `json:"author"`
		Publisher string `json:"publisher"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("isbn lookup: no match")
	}

	return &BookInfo{Title: out[0].Title, Author: out[0].Author, Publisher: out[0].Publisher}, nil
}
