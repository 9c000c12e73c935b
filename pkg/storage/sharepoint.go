package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/sdejongh/filenorris/internal/platform"
	"github.com/sdejongh/filenorris/pkg/logging"
	"github.com/sdejongh/filenorris/pkg/models"
)

const (
	DefaultAuthorityURL = "https://login.microsoftonline.com"
	DefaultGraphURL     = "https://graph.microsoft.com/v1.0"
	graphScope          = "https://graph.microsoft.com/.default"

	childrenSelect  = "id,name,folder,size,lastModifiedDateTime"
	defaultPageSize = 200
)

// SharePointOptions configure Microsoft Graph access
type SharePointOptions struct {
	AuthorityURL string
	GraphURL     string
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	PageSize     int
}

// GraphError is a non-success Graph response
type GraphError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *GraphError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("graph request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("graph request failed with status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps 404 to models.ErrNotFound
func (e *GraphError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return models.ErrNotFound
	}
	return nil
}

type driveItem struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Size                 int64     `json:"size"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	Folder               *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder,omitempty"`
}

func (d driveItem) isDir() bool {
	return d.Folder != nil
}

// SharePoint is a repository over a SharePoint document library or
// OneDrive drive. Human paths are resolved one segment at a time.
type SharePoint struct {
	cfg      models.SharePointConfig
	opts     Options
	driveURL string
	pageSize int
	client   *retryablehttp.Client
	tokens   *tokenCache
}

// NewSharePoint creates a Graph repository. Tokens are fetched with the
// client-credentials grant on first use.
func NewSharePoint(cfg models.SharePointConfig, secret SecretFunc, spOpts SharePointOptions, opts Options) *SharePoint {
	opts = opts.withDefaults()
	if spOpts.AuthorityURL == "" {
		spOpts.AuthorityURL = DefaultAuthorityURL
	}
	if spOpts.GraphURL == "" {
		spOpts.GraphURL = DefaultGraphURL
	}
	if spOpts.RetryMax <= 0 {
		spOpts.RetryMax = 3
	}
	if spOpts.PageSize <= 0 {
		spOpts.PageSize = defaultPageSize
	}

	client := retryablehttp.NewClient()
	client.RetryMax = spOpts.RetryMax
	if spOpts.RetryWaitMin > 0 {
		client.RetryWaitMin = spOpts.RetryWaitMin
	}
	if spOpts.RetryWaitMax > 0 {
		client.RetryWaitMax = spOpts.RetryWaitMax
	}
	client.Logger = logging.NewRetryLogger(opts.Logger.WithFields(logging.Fields{"storage_id": cfg.ID}))

	graph := strings.TrimRight(spOpts.GraphURL, "/")
	driveURL := graph + "/sites/" + cfg.ObjectID + "/drive"
	if cfg.DriveID != "" {
		driveURL = graph + "/drives/" + url.PathEscape(cfg.DriveID)
	}

	s := &SharePoint{
		cfg:      cfg,
		opts:     opts,
		driveURL: driveURL,
		pageSize: spOpts.PageSize,
		client:   client,
	}

	tokenURL := strings.TrimRight(spOpts.AuthorityURL, "/") + "/" + url.PathEscape(cfg.TenantID) + "/oauth2/v2.0/token"
	s.tokens = newTokenCache(func(ctx context.Context) (*oauth2.Token, error) {
		clientSecret, err := secret(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve credential: %w", err)
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{graphScope},
		}
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client.StandardClient())
		t, err := cc.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain access token: %w", err)
		}
		opts.Logger.Debug(ctx, "Graph access token issued", logging.Fields{
			"storage_id": cfg.ID,
			"expires":    t.Expiry,
		})
		return t, nil
	})
	return s
}

func (s *SharePoint) itemURL(obj models.FileObjectID) string {
	if obj.IsRoot() {
		return s.driveURL + "/root"
	}
	return s.driveURL + "/items/" + url.PathEscape(obj.ID())
}

// childURL addresses name below parent by path, as Graph's upload
// endpoint expects
func (s *SharePoint) childURL(parent models.FileObjectID, name string) string {
	if parent.IsRoot() {
		return s.driveURL + "/root:/" + url.PathEscape(name) + ":"
	}
	return s.itemURL(parent) + ":/" + url.PathEscape(name) + ":"
}

// send issues an authorized request. A 401 drops the cached token and the
// request is sent once more with a fresh one.
func (s *SharePoint) send(ctx context.Context, method, target string, body interface{}, contentType string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	for attempt := 0; ; attempt++ {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := s.client.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("graph request failed: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			drain(resp)
			s.tokens.Invalidate(token)
			s.opts.Logger.Info(ctx, "Graph rejected access token, refreshing", logging.Fields{"storage_id": s.cfg.ID})
			continue
		}
		return resp, nil
	}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func graphError(resp *http.Response) error {
	defer drain(resp)
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &payload)
	return &GraphError{StatusCode: resp.StatusCode, Code: payload.Error.Code, Message: payload.Error.Message}
}

func (s *SharePoint) doJSON(ctx context.Context, method, target string, in, out interface{}) error {
	var body interface{}
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = data
		contentType = "application/json"
	}

	resp, err := s.send(ctx, method, target, body, contentType)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return graphError(resp)
	}
	defer drain(resp)

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode graph response: %w", err)
	}
	return nil
}

func (s *SharePoint) listChildren(ctx context.Context, obj models.FileObjectID) ([]driveItem, error) {
	q := url.Values{}
	q.Set("$select", childrenSelect)
	q.Set("$top", strconv.Itoa(s.pageSize))
	next := s.itemURL(obj) + "/children?" + q.Encode()

	var items []driveItem
	for next != "" {
		var page struct {
			Value    []driveItem `json:"value"`
			NextLink string      `json:"@odata.nextLink"`
		}
		if err := s.doJSON(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		items = append(items, page.Value...)
		next = page.NextLink
	}
	return items, nil
}

func findChild(children []driveItem, name string) (driveItem, bool) {
	for _, c := range children {
		if c.Name == name {
			return c, true
		}
	}
	// SharePoint names are case-insensitive
	for _, c := range children {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return driveItem{}, false
}

// resolve walks clean from the drive root, listing each level
func (s *SharePoint) resolve(ctx context.Context, clean string) (models.FileObjectID, bool, error) {
	obj := models.RootObject()
	isDir := true
	walked := ""

	for _, seg := range platform.Segments(clean) {
		if !isDir {
			return obj, false, fmt.Errorf("%s: %w", walked, models.ErrNotDirectory)
		}
		children, err := s.listChildren(ctx, obj)
		if err != nil {
			return obj, false, err
		}
		walked = platform.JoinPath(walked, seg)
		child, ok := findChild(children, seg)
		if !ok {
			return obj, false, fmt.Errorf("%s: %w", walked, models.ErrNotFound)
		}
		obj = models.ItemObject(child.ID)
		isDir = child.isDir()
	}
	return obj, isDir, nil
}

// GetFiles lists the children of path
func (s *SharePoint) GetFiles(ctx context.Context, p string) ([]models.FileItem, error) {
	clean, err := platform.CleanPath(p)
	if err != nil {
		return nil, err
	}

	obj, isDir, err := s.resolve(ctx, clean)
	if err != nil {
		return nil, err
	}
	if !isDir {
		return nil, fmt.Errorf("%s: %w", p, models.ErrNotDirectory)
	}

	children, err := s.listChildren(ctx, obj)
	if err != nil {
		return nil, err
	}

	items := make([]models.FileItem, 0, len(children))
	for _, c := range children {
		items = append(items, models.NewFileItem(
			c.Name,
			platform.JoinPath(clean, c.Name),
			c.isDir(),
			c.Size,
			c.LastModifiedDateTime,
		))
	}
	return items, nil
}

func (s *SharePoint) resolveFile(ctx context.Context, p string) (models.FileObjectID, error) {
	clean, err := platform.CleanPath(p)
	if err != nil {
		return models.FileObjectID{}, err
	}
	obj, isDir, err := s.resolve(ctx, clean)
	if err != nil {
		return obj, err
	}
	if isDir {
		return obj, fmt.Errorf("%s is a directory: %w", p, models.ErrInvalidPath)
	}
	return obj, nil
}

// GetFileContent downloads a file
func (s *SharePoint) GetFileContent(ctx context.Context, p string) (io.ReadCloser, error) {
	obj, err := s.resolveFile(ctx, p)
	if err != nil {
		return nil, err
	}

	resp, err := s.send(ctx, http.MethodGet, s.itemURL(obj)+"/content", nil, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, graphError(resp)
	}
	return resp.Body, nil
}

// thumbnailVariant picks the smallest Graph rendition covering size
func thumbnailVariant(size int) string {
	switch {
	case size <= 96:
		return "small"
	case size <= 176:
		return "medium"
	default:
		return "large"
	}
}

// GetThumbnail fetches Graph's rendition; nil when the service has none
func (s *SharePoint) GetThumbnail(ctx context.Context, p string, size int) (io.ReadCloser, error) {
	obj, err := s.resolveFile(ctx, p)
	if err != nil {
		if isCanceled(err) {
			return nil, err
		}
		s.opts.Logger.Debug(ctx, "No thumbnail", logging.Fields{"path": p, "reason": err.Error()})
		return nil, nil
	}

	target := s.itemURL(obj) + "/thumbnails/0/" + thumbnailVariant(size) + "/content"
	resp, err := s.send(ctx, http.MethodGet, target, nil, "")
	if err != nil {
		if isCanceled(err) {
			return nil, err
		}
		s.opts.Logger.Debug(ctx, "Thumbnail request failed", logging.Fields{"path": p, "error": err.Error()})
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode != http.StatusNotFound {
			s.opts.Logger.Debug(ctx, "Thumbnail unavailable", logging.Fields{"path": p, "status": resp.StatusCode})
		}
		drain(resp)
		return nil, nil
	}
	return resp.Body, nil
}

func (s *SharePoint) resolveDir(ctx context.Context, destination string) (models.FileObjectID, error) {
	clean, err := platform.CleanPath(destination)
	if err != nil {
		return models.FileObjectID{}, err
	}
	obj, isDir, err := s.resolve(ctx, clean)
	if err != nil {
		return obj, err
	}
	if !isDir {
		return obj, fmt.Errorf("destination %s: %w", destination, models.ErrNotDirectory)
	}
	return obj, nil
}

func (s *SharePoint) putContent(ctx context.Context, parent models.FileObjectID, name string, content io.Reader) error {
	resp, err := s.send(ctx, http.MethodPut, s.childURL(parent, name)+"/content", content, "application/octet-stream")
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return graphError(resp)
	}
	drain(resp)
	return nil
}

// UploadFile writes content as destination/fileName with a simple upload
func (s *SharePoint) UploadFile(ctx context.Context, destination, fileName string, content io.Reader) error {
	if err := platform.ValidateName(fileName); err != nil {
		return err
	}
	parent, err := s.resolveDir(ctx, destination)
	if err != nil {
		return err
	}
	if err := s.putContent(ctx, parent, fileName, &ctxReader{ctx: ctx, r: content}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", fileName, err)
	}
	return nil
}

// ensureFolder returns the id of the child folder name, creating it if needed
func (s *SharePoint) ensureFolder(ctx context.Context, parent models.FileObjectID, name string) (models.FileObjectID, bool, error) {
	children, err := s.listChildren(ctx, parent)
	if err != nil {
		return parent, false, err
	}
	if c, ok := findChild(children, name); ok {
		if !c.isDir() {
			return parent, false, fmt.Errorf("%s exists and is a file: %w", name, models.ErrNotDirectory)
		}
		return models.ItemObject(c.ID), false, nil
	}

	var created driveItem
	req := map[string]interface{}{
		"name":                              name,
		"folder":                            map[string]interface{}{},
		"@microsoft.graph.conflictBehavior": "fail",
	}
	if err := s.doJSON(ctx, http.MethodPost, s.itemURL(parent)+"/children", req, &created); err != nil {
		return parent, false, fmt.Errorf("failed to create folder %s: %w", name, err)
	}
	return models.ItemObject(created.ID), true, nil
}

// UploadFolder creates destination/folderName holding every entry. A folder
// created by this call is deleted again if any entry fails.
func (s *SharePoint) UploadFolder(ctx context.Context, destination, folderName string, files []models.UploadEntry) error {
	if err := platform.ValidateName(folderName); err != nil {
		return err
	}
	parent, err := s.resolveDir(ctx, destination)
	if err != nil {
		return err
	}

	root, created, err := s.ensureFolder(ctx, parent, folderName)
	if err != nil {
		return err
	}

	if err := s.uploadEntries(ctx, root, files); err != nil {
		if created {
			s.deleteItem(context.WithoutCancel(ctx), root)
		}
		return err
	}
	return nil
}

func (s *SharePoint) uploadEntries(ctx context.Context, root models.FileObjectID, files []models.UploadEntry) error {
	folders := map[string]models.FileObjectID{"": root}

	var folderFor func(dir string) (models.FileObjectID, error)
	folderFor = func(dir string) (models.FileObjectID, error) {
		if obj, ok := folders[dir]; ok {
			return obj, nil
		}
		parentDir, name := "", dir
		if i := strings.LastIndex(dir, "/"); i >= 0 {
			parentDir, name = dir[:i], dir[i+1:]
		}
		parent, err := folderFor(parentDir)
		if err != nil {
			return parent, err
		}
		obj, _, err := s.ensureFolder(ctx, parent, name)
		if err != nil {
			return obj, err
		}
		folders[dir] = obj
		return obj, nil
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := platform.CleanPath(f.RelativePath)
		if err != nil {
			return err
		}
		if rel == "" || f.Open == nil {
			return fmt.Errorf("invalid entry %q: %w", f.RelativePath, models.ErrInvalidPath)
		}

		dir, name := "", rel
		if i := strings.LastIndex(rel, "/"); i >= 0 {
			dir, name = rel[:i], rel[i+1:]
		}
		parent, err := folderFor(dir)
		if err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", f.RelativePath, err)
		}
		err = s.putContent(ctx, parent, name, &ctxReader{ctx: ctx, r: rc})
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", f.RelativePath, err)
		}
	}
	return nil
}

func (s *SharePoint) deleteItem(ctx context.Context, obj models.FileObjectID) {
	resp, err := s.send(ctx, http.MethodDelete, s.itemURL(obj), nil, "")
	if err != nil {
		s.opts.Logger.Warn(ctx, "Failed to remove partial upload", logging.Fields{"item": obj.String(), "error": err.Error()})
		return
	}
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		s.opts.Logger.Warn(ctx, "Failed to remove partial upload", logging.Fields{"item": obj.String(), "status": resp.StatusCode})
	}
	drain(resp)
}

// Close releases idle connections
func (s *SharePoint) Close() error {
	s.client.HTTPClient.CloseIdleConnections()
	return nil
}

