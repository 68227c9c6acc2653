// Package pubmed 提供对 NCBI E-utilities 的搜索（esearch）与详情抓取（efetch）客户端。
package pubmed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"leukemialens-go/internal/config"
	"leukemialens-go/pkg/log"
	"leukemialens-go/pkg/ratelimit"
)

// NCBI 建议 efetch 每次请求不超过 200 个 ID，以保证稳定性
const detailBatchSize = 200

const defaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// ErrMalformedResponse 表示某个子批次的 efetch 响应无法解析。
var ErrMalformedResponse = errors.New("efetch 响应格式错误")

// SearchResult 是一页搜索结果：当前页的 ID 列表与上游报告的命中总数。
type SearchResult struct {
	IDs   []string
	Total int
}

// Archiver 把原始 efetch 响应归档到对象存储，供排查解析问题时回放。
type Archiver interface {
	Archive(ctx context.Context, objectName string, data []byte) error
}

// Client 封装了对 E-utilities 的访问，所有出站请求都经过注入的限速器。
type Client struct {
	cfg      config.PubmedConfig
	limiter  *ratelimit.Limiter
	client   *http.Client
	archiver Archiver
}

// NewClient 创建一个 PubMed 客户端。限速器必须是进程内共享的实例。
func NewClient(cfg config.PubmedConfig, limiter *ratelimit.Limiter) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		cfg:     cfg,
		limiter: limiter,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// WithArchiver 启用原始响应归档。归档是尽力而为的，失败只记日志不影响抓取。
func (c *Client) WithArchiver(a Archiver) *Client {
	c.archiver = a
	return c
}

// identityParams 返回 NCBI 要求的客户端标识参数（tool/email，可选 api_key）。
func (c *Client) identityParams() url.Values {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("email", c.cfg.Email)
	params.Set("tool", c.cfg.Tool)
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}
	return params
}

// Search 发出一次限速的 esearch 请求，返回 [offset, offset+limit) 页的 ID 与总命中数。
func (c *Client) Search(ctx context.Context, term string, limit, offset int) (SearchResult, error) {
	params := c.identityParams()
	params.Set("term", term)
	params.Set("retmax", strconv.Itoa(limit))
	params.Set("retstart", strconv.Itoa(offset))
	params.Set("usehistory", "y")
	params.Set("retmode", "json")

	endpoint := c.cfg.BaseURL + "/esearch.fcgi?" + params.Encode()
	log.Infof("[PubmedClient] esearch: limit=%d offset=%d", limit, offset)

	resp, err := c.limiter.Do(ctx, func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if reqErr != nil {
			return nil, reqErr
		}
		return c.client.Do(req)
	})
	if err != nil {
		return SearchResult{}, fmt.Errorf("esearch 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SearchResult{}, fmt.Errorf("esearch 返回非 200 状态码: %s", resp.Status)
	}

	var payload struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
			Count  string   `json:"count"`
		} `json:"esearchresult"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return SearchResult{}, fmt.Errorf("解析 esearch 响应失败: %w", err)
	}

	total, _ := strconv.Atoi(payload.ESearchResult.Count)
	log.Infof("[PubmedClient] esearch 完成: 本页 %d 条, 总命中 %d 条", len(payload.ESearchResult.IDList), total)
	return SearchResult{IDs: payload.ESearchResult.IDList, Total: total}, nil
}

// FetchDetails 抓取一组 ID 的完整记录。内部按 ≤200 个 ID 拆分子批次，
// 每个子批次发出一次限速请求，结果按来源顺序拼接。
// 某个子批次响应格式错误时丢弃该批次并继续；限速器层面的失败（内部已重试过）
// 对整个调用是致命的。
func (c *Client) FetchDetails(ctx context.Context, ids []string) ([]Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var all []Article
	for start := 0; start < len(ids); start += detailBatchSize {
		end := start + detailBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		log.Infof("[PubmedClient] efetch 子批次 %d (%d 个 ID)...", start/detailBatchSize+1, len(batch))
		articles, err := c.fetchBatch(ctx, batch)
		if err != nil {
			if errors.Is(err, ErrMalformedResponse) {
				// 该子批次记录丢弃，已解析的批次不受影响
				log.Warnf("[PubmedClient] 子批次 %d 响应格式错误，跳过: %v", start/detailBatchSize+1, err)
				continue
			}
			return nil, err
		}
		all = append(all, articles...)
	}

	log.Infof("[PubmedClient] efetch 完成, 共解析 %d 条记录", len(all))
	return all, nil
}

// fetchBatch 抓取并解析一个 ≤200 ID 的子批次。
func (c *Client) fetchBatch(ctx context.Context, ids []string) ([]Article, error) {
	params := c.identityParams()
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")

	endpoint := c.cfg.BaseURL + "/efetch.fcgi?" + params.Encode()

	resp, err := c.limiter.Do(ctx, func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if reqErr != nil {
			return nil, reqErr
		}
		return c.client.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("efetch 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("efetch 返回非 200 状态码: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取 efetch 响应失败: %w", err)
	}

	if c.archiver != nil {
		objectName := fmt.Sprintf("efetch/%s_%s.xml", ids[0], ids[len(ids)-1])
		if archiveErr := c.archiver.Archive(ctx, objectName, body); archiveErr != nil {
			log.Warnf("[PubmedClient] 原始响应归档失败 (%s): %v", objectName, archiveErr)
		}
	}

	return ParseArticles(body)
}
