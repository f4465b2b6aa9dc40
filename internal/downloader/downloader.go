// Package downloader 负责在启动时回填历史K线，让趋势过滤器在进入等待阶段前
// 就拥有完整的计算窗口。
package downloader

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"trend-grid-bot-go/internal/logger"
	"trend-grid-bot-go/internal/models"
)

// KlineDownloader 从交易所REST接口拉取历史K线
type KlineDownloader struct {
	client *binance.Client
}

// NewKlineDownloader 创建下载器。公共行情接口不需要API Key。
func NewKlineDownloader() *KlineDownloader {
	return &KlineDownloader{
		client: binance.NewClient("", ""),
	}
}

// Warmup 拉取最近 limit 根已收盘的K线，按时间升序返回。
// 单次请求上限1000条，超出时分页补齐。
func (d *KlineDownloader) Warmup(ctx context.Context, symbol, interval string, limit int) ([]models.Kline, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("warmup limit must be positive, got %d", limit)
	}

	var out []models.Kline
	remaining := limit
	var endTime int64

	for remaining > 0 {
		batch := remaining
		if batch > 1000 {
			batch = 1000
		}

		svc := d.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(batch)
		if endTime > 0 {
			svc = svc.EndTime(endTime)
		}

		klines, err := svc.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("kline backfill failed: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		converted, err := convertKlines(klines)
		if err != nil {
			return nil, err
		}
		out = append(converted, out...)

		remaining -= len(klines)
		endTime = klines[0].OpenTime - 1

		if remaining > 0 {
			time.Sleep(200 * time.Millisecond) // 避免触发限频
		}
	}

	logger.S().Infow("kline warmup complete",
		"symbol", symbol, "interval", interval, "count", len(out))
	return out, nil
}

// convertKlines 把交易所的字符串数值转换为内部K线类型
func convertKlines(klines []*binance.Kline) ([]models.Kline, error) {
	out := make([]models.Kline, 0, len(klines))
	for _, k := range klines {
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		cls, err4 := strconv.ParseFloat(k.Close, 64)
		vol, err5 := strconv.ParseFloat(k.Volume, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return nil, fmt.Errorf("undecodable kline at open time %d", k.OpenTime)
		}
		out = append(out, models.Kline{
			OpenTime:  time.UnixMilli(k.OpenTime),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     cls,
			Volume:    vol,
			CloseTime: time.UnixMilli(k.CloseTime),
		})
	}
	return out, nil
}
