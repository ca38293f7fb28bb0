package report

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"kairos/internal/backtest"
	"kairos/internal/market"
	"kairos/internal/signal"
)

const (
	colorBackground  = "#060c1b"
	colorTextPrimary = "#eceff4"
	colorTextMuted   = "#9ca3af"
	colorBull        = "#34d399"
	colorBear        = "#f87171"
	colorEquity      = "#3b82f6"
	colorEntryBuy    = "#fbbf24"
	colorEntrySell   = "#f472b6"

	chartWidthPx   = 1600
	klineHeightPx  = 600
	equityHeightPx = 320
)

// BuildHTML renders a price chart with trade markers plus the equity
// curve into a single scrollable page.
func BuildHTML(rep *backtest.Report, candles []market.Candle) ([]byte, error) {
	if rep == nil {
		return nil, fmt.Errorf("nil report")
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles to plot")
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(buildKlineChart(rep, candles), buildEquityChart(rep))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteHTML saves the chart page under dir and returns the file path.
func WriteHTML(rep *backtest.Report, candles []market.Candle, dir string) (string, error) {
	html, err := BuildHTML(rep, candles)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s_%d.html", strings.ToLower(rep.Symbol), rep.Timeframe, time.Now().UnixMilli())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func buildKlineChart(rep *backtest.Report, candles []market.Candle) *charts.Kline {
	minPrice, maxPrice := priceBounds(candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", klineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s", strings.ToUpper(rep.Symbol), rep.Timeframe),
			Subtitle:      fmt.Sprintf("return %+.2f%% | trades %d | win rate %.1f%%", rep.ReturnPct*100, rep.TotalTrades, rep.WinRate*100),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextMuted},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextMuted},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextMuted},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextMuted, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	xAxis := buildXAxis(candles)
	data := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", data)
	kline.Overlap(buildTradeMarkers(rep, candles, xAxis))
	return kline
}

// buildTradeMarkers overlays entry and exit points as two scatter
// series indexed on the candle axis.
func buildTradeMarkers(rep *backtest.Report, candles []market.Candle, xAxis []string) *charts.Scatter {
	index := make(map[int64]int, len(candles))
	for i, c := range candles {
		index[c.CloseTime] = i
	}
	entries := make([]opts.ScatterData, 0, len(rep.Trades))
	exits := make([]opts.ScatterData, 0, len(rep.Trades))
	for _, t := range rep.Trades {
		color := colorEntryBuy
		symbolStyle := "triangle"
		if t.Action == signal.Sell {
			color = colorEntrySell
			symbolStyle = "pin"
		}
		if i, ok := index[t.EntryTime]; ok {
			entries = append(entries, opts.ScatterData{
				Value:      []any{xAxis[i], round(t.EntryPrice, 4)},
				Symbol:     symbolStyle,
				SymbolSize: 14,
				ItemStyle:  &opts.ItemStyle{Color: color},
			})
		}
		if t.ExitTime != 0 {
			if i, ok := index[t.ExitTime]; ok {
				exitColor := colorBull
				if t.PnL < 0 {
					exitColor = colorBear
				}
				exits = append(exits, opts.ScatterData{
					Value:      []any{xAxis[i], round(t.ExitPrice, 4)},
					Symbol:     "circle",
					SymbolSize: 10,
					ItemStyle:  &opts.ItemStyle{Color: exitColor},
				})
			}
		}
	}
	scatter := charts.NewScatter()
	scatter.SetXAxis(xAxis)
	scatter.AddSeries("Entries", entries)
	scatter.AddSeries("Exits", exits)
	return scatter
}

func buildEquityChart(rep *backtest.Report) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Equity", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextMuted},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextMuted, Opacity: opts.Float(0.15)}},
		}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: colorTextMuted}}),
	)
	x := make([]string, len(rep.Equity))
	data := make([]opts.LineData, len(rep.Equity))
	for i, p := range rep.Equity {
		x[i] = time.UnixMilli(p.TS).UTC().Format("01-02 15:04")
		data[i] = opts.LineData{Value: round(p.Capital, 2)}
	}
	line.SetXAxis(x)
	line.AddSeries("Capital", data,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	return line
}

func buildXAxis(candles []market.Candle) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = time.UnixMilli(c.CloseTime).UTC().Format("01-02 15:04")
	}
	return x
}

func priceBounds(candles []market.Candle) (minVal, maxVal float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	minVal = candles[0].Low
	maxVal = candles[0].High
	for _, c := range candles {
		if c.Low < minVal {
			minVal = c.Low
		}
		if c.High > maxVal {
			maxVal = c.High
		}
	}
	return minVal, maxVal
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
