package catalog

import (
	"encoding/json"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Camera 摄像头描述，只读
type Camera struct {
	ID          string `json:"id"`
	DisplayName string `json:"camera_name"`
	Location    string `json:"location,omitempty"`
	IsEnabled   bool   `json:"is_enabled"`
}

// UnmarshalJSON 兼容数字与字符串 id，缺省 is_enabled 视为启用
// 后端只返回启用的摄像头，旧版本不带 location/is_enabled
func (c *Camera) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID          json.RawMessage `json:"id"`
		CameraName  string          `json:"camera_name"`
		DisplayName string          `json:"display_name"`
		Location    string          `json:"location"`
		IsEnabled   *bool           `json:"is_enabled"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	id, err := parseID(raw.ID)
	if err != nil {
		return err
	}

	c.ID = id
	c.DisplayName = raw.CameraName
	if c.DisplayName == "" {
		c.DisplayName = raw.DisplayName
	}
	c.Location = raw.Location
	c.IsEnabled = raw.IsEnabled == nil || *raw.IsEnabled
	return nil
}

func parseID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("catalog: camera id is missing")
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.Wrapf(err, "catalog: camera id %s", raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("catalog: camera id is empty")
	}
	return s, nil
}

// Endpoint 一路视频流的连接地址
type Endpoint struct {
	CameraID string
	URL      *url.URL
}

// String 不含查询参数，避免日志中出现令牌
func (e Endpoint) String() string {
	if e.URL == nil {
		return ""
	}
	u := *e.URL
	u.RawQuery = ""
	return u.String()
}

// feedURL 拼接 {base}{path}/{camera_id}?show_tripwires=
func feedURL(base *url.URL, videoPath, cameraID string, showTripwires bool) *url.URL {
	u := *base
	u.Path = path.Join("/", base.Path, videoPath, cameraID)
	u.RawPath = ""
	q := url.Values{}
	q.Set("show_tripwires", strconv.FormatBool(showTripwires))
	u.RawQuery = q.Encode()
	return &u
}
