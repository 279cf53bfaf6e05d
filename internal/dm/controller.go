package dm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	dmURLTemplate    = "http://127.0.0.1:%s/download-manager"
	dmDownloadCmd    = "download"
	dmDARStatusCmd   = "dataAccessRequests"
	dmProductCancel  = "products/%s?action=cancel"
	ieDARRespPath    = "ingest/dar"
	procNetTCPPath   = "/proc/net/tcp"
	tcpListenState   = "0A"
	procUIDIndex     = 7
	procStatusIndex  = 3
	procAddressIndex = 1
)

// DM properties-file keys the engine reads.
const (
	dmConfPortKey        = "WEB_INTERFACE_PORT_NO"
	dmConfDownloadDirKey = "BASE_DOWNLOAD_FOLDER_ABSOLUTE"
)

// Config carries the engine-side knobs of the DM interface.
type Config struct {
	// ConfigPath is the DM's own properties file; the engine reads the
	// DM port and download directory from it.
	ConfigPath string
	// IEPort is the port of the engine's own HTTP server; the DM pulls
	// DAR documents from it.
	IEPort string
	// MaxPortWait bounds the startup wait for the DM listener.
	MaxPortWait time.Duration
	// DefaultPortWait is slept when the TCP table cannot be probed.
	DefaultPortWait time.Duration
	// ProcNetTCP overrides the TCP table path, for tests.
	ProcNetTCP string
}

type queueEntry struct {
	seqID string
	dar   *DAR
}

// Controller submits DARs to the Download Manager and serves their
// bodies back when the DM pulls them. One Controller exists per
// process; the queue and sequence counter are guarded by their own
// mutex, separate from the store mutex.
type Controller struct {
	logger        *slog.Logger
	http          *http.Client
	cfg           Config
	dmPort        string
	dmURL         string
	downloadDir   string
	darRespURL    string
	IsDMListening bool

	mu    sync.Mutex
	queue []queueEntry
	seqID int
}

func NewController(cfg Config, httpClient *http.Client, logger *slog.Logger) *Controller {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProcNetTCP == "" {
		cfg.ProcNetTCP = procNetTCPPath
	}
	if cfg.DefaultPortWait == 0 {
		cfg.DefaultPortWait = 25 * time.Second
	}
	return &Controller{logger: logger, http: httpClient, cfg: cfg}
}

// DownloadDir returns the DM's download root directory.
func (c *Controller) DownloadDir() string {
	return c.downloadDir
}

// Configure reads the DM configuration, prepares the download tree and
// waits for the DM listener. A missing listener is not fatal: the DM
// may come up later, so after the wait ceiling the engine proceeds.
func (c *Controller) Configure() (bool, error) {
	port, downloadDir, err := readDMConfig(c.cfg.ConfigPath)
	if err != nil {
		c.logger.Warn("cannot read download manager configuration",
			"path", c.cfg.ConfigPath, "error", err)
	}
	if downloadDir == "" {
		return false, fmt.Errorf("%w: no download directory", ErrConfig)
	}
	if port == "" {
		return false, fmt.Errorf("%w: no DM port", ErrConfig)
	}
	c.dmPort = port
	c.downloadDir = downloadDir
	c.dmURL = fmt.Sprintf(dmURLTemplate, c.dmPort)
	c.darRespURL = "http://127.0.0.1:" + c.cfg.IEPort + "/" + ieDARRespPath

	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return false, fmt.Errorf("%w: cannot create download dir: %v", ErrConfig, err)
	}
	year := strconv.Itoa(time.Now().UTC().Year())
	if err := os.MkdirAll(filepath.Join(downloadDir, year), 0o755); err != nil {
		return false, fmt.Errorf("%w: cannot create year dir: %v", ErrConfig, err)
	}

	return c.waitForPort(), nil
}

// readDMConfig extracts the DM port and download directory from the
// DM's properties file.
func readDMConfig(path string) (port, downloadDir string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case dmConfPortKey:
			port = strings.TrimSpace(value)
		case dmConfDownloadDirKey:
			downloadDir = strings.TrimSpace(value)
		}
	}
	return port, downloadDir, scanner.Err()
}

// waitForPort polls the OS TCP table until a socket owned by our UID
// is listening on the DM port, up to MaxPortWait. When the table
// cannot be read at all, the default wait is slept instead.
func (c *Controller) waitForPort() bool {
	if c.dmPort == "" {
		c.logger.Warn("no port to wait on")
		return false
	}
	c.logger.Info("waiting for DM port", "port", c.dmPort)

	port, err := strconv.Atoi(c.dmPort)
	if err != nil {
		c.logger.Warn("bad DM port", "port", c.dmPort, "error", err)
		return false
	}
	uid := strconv.Itoa(os.Getuid())

	start := time.Now()
	deadline := start.Add(c.cfg.MaxPortWait)
	for {
		listening, err := portListening(c.cfg.ProcNetTCP, port, uid)
		if err != nil {
			c.logger.Warn("cannot probe TCP table, sleeping default wait",
				"error", err, "wait", c.cfg.DefaultPortWait)
			time.Sleep(c.cfg.DefaultPortWait)
			c.logger.Info("finished default wait")
			return false
		}
		if listening {
			c.logger.Info("DM port OK",
				"waitedSecs", fmt.Sprintf("%2.1f", time.Since(start).Seconds()))
			c.IsDMListening = true
			return true
		}
		if time.Now().After(deadline) {
			c.logger.Warn("wait time elapsed without finding the listening port")
			return false
		}
		time.Sleep(time.Second)
	}
}

// portListening scans a /proc/net/tcp style table for a LISTEN socket
// on the given port owned by uid.
func portListening(path string, port int, uid string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) <= procUIDIndex {
			continue
		}
		if fields[procUIDIndex] != uid || fields[procStatusIndex] != tcpListenState {
			continue
		}
		_, hexPort, found := strings.Cut(fields[procAddressIndex], ":")
		if !found {
			continue
		}
		p, err := strconv.ParseInt(hexPort, 16, 32)
		if err != nil {
			continue
		}
		if int(p) == port {
			return true, nil
		}
	}
	return false, scanner.Err()
}

func (c *Controller) nextSeqID() int {
	if c.seqID >= math.MaxInt-1 {
		c.seqID = 0
	} else {
		c.seqID++
	}
	return c.seqID
}

func mkIDBase() string {
	return time.Now().UTC().Format("20060102T150405") + "-"
}

// SubmitResult is the outcome of a DAR submission.
type SubmitResult struct {
	Status  string
	DarURL  string
	DarUUID string
}

// Submission outcomes. DAR_EXISTS means the DM already holds a DAR for
// this URL; the caller logs it and gives up.
const (
	SubmitOK        = "OK"
	SubmitDARExists = "DAR_EXISTS"
)

// SubmitDAR enqueues the DAR under a fresh sequence id and asks the DM
// to pull it from the engine's callback URL.
func (c *Controller) SubmitDAR(dar *DAR) (SubmitResult, error) {
	if c.dmPort == "" {
		return SubmitResult{}, fmt.Errorf("%w: no port for DM", ErrConfig)
	}
	if c.cfg.IEPort == "" {
		return SubmitResult{}, fmt.Errorf("%w: no IE port", ErrConfig)
	}

	c.mu.Lock()
	seqID := mkIDBase() + strconv.Itoa(c.nextSeqID())
	c.queue = append(c.queue, queueEntry{seqID: seqID, dar: dar})
	c.mu.Unlock()

	darURL := c.darRespURL + "/" + seqID
	c.logger.Info("submitting request to DM to retrieve DAR", "darUrl", darURL)

	resp, err := c.http.PostForm(c.dmURL+"/"+dmDownloadCmd,
		url.Values{"darUrl": {darURL}})
	if err != nil {
		c.logger.Error("download manager error", "error", err)
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrDM, err)
	}
	defer resp.Body.Close()

	var dmResp struct {
		Success      bool   `json:"success"`
		DarUUID      string `json:"darUuid"`
		ErrorType    string `json:"errorType"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := decodeJSON(resp.Body, &dmResp); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: bad submit response: %v", ErrDM, err)
	}

	switch {
	case dmResp.Success:
		c.logger.Info("DM accepted DAR", "darUuid", dmResp.DarUUID)
		return SubmitResult{Status: SubmitOK, DarURL: darURL, DarUUID: dmResp.DarUUID}, nil
	case dmResp.ErrorType == "DataAccessRequestAlreadyExistsException":
		return SubmitResult{Status: SubmitDARExists}, nil
	case dmResp.ErrorMessage != "":
		return SubmitResult{}, fmt.Errorf("%w: DM reports error: %s", ErrDM, dmResp.ErrorMessage)
	default:
		return SubmitResult{}, fmt.Errorf("%w: unknown error, no 'errorMessage' in response", ErrDM)
	}
}

// NextDAR hands out the DAR for the given sequence id when the DM
// pulls it. The head of the queue is the common case; out-of-sequence
// access searches and removes the matching entry. A missing id returns
// nil.
func (c *Controller) NextDAR(seqID string) *DAR {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return nil
	}
	if c.queue[0].seqID == seqID {
		dar := c.queue[0].dar
		c.queue = c.queue[1:]
		return dar
	}

	c.logger.Warn("out-of-sequence DAR access", "seqID", seqID)
	for i, entry := range c.queue {
		if entry.seqID == seqID {
			dar := entry.dar
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return dar
		}
	}
	c.logger.Warn("DAR not found", "seqID", seqID)
	return nil
}

func decodeJSON(r io.Reader, v any) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
