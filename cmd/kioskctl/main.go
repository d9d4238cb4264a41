// Command kioskctl drives a kiosk terminal's HTTP API from the shell,
// for smoke tests and operator interventions.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `kioskctl
Usage:
  kioskctl -addr HOST:PORT <cmd> [args]

Commands:
  version
  state
  identify
  cancel-scan
  strains    [-category c] [-q text] [-min-potency n] [-max-potency n] [-sort s] [-limit n] [-offset n]
  units      -strain <name>
  tiers      -strain <name>
  add        -unit <uuid> | -strain <name> [-mass <g>]
  rm         -unit <uuid>
  clear
  shortlist  -strain <name>
  unshortlist -strain <name>
  review     [-notes text]
  back
  authorize
  ack
  reset
  watch                                        (stream state over websocket)
`)
	os.Exit(2)
}

// main dispatches subcommands against the kiosk HTTP facade.
func main() {
	addr := flag.String("addr", "localhost:8080", "kiosk addr")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]
	base := "http://" + *addr

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {

	case "version":
		fmt.Printf("kioskctl %s (%s)\n", version, buildDate)

	case "state":
		call(ctx, base, http.MethodGet, "/v1/state", nil)

	case "identify":
		call(ctx, base, http.MethodPost, "/v1/identify", nil)

	case "cancel-scan":
		call(ctx, base, http.MethodPost, "/v1/identify/cancel", nil)

	case "strains":
		fs := flag.NewFlagSet("strains", flag.ExitOnError)
		category := fs.String("category", "", "category filter")
		q := fs.String("q", "", "name search")
		minPot := fs.String("min-potency", "", "minimum potency")
		maxPot := fs.String("max-potency", "", "maximum potency")
		sort := fs.String("sort", "", "popularity|recency|rating|sales")
		limit := fs.Int("limit", 0, "page size")
		offset := fs.Int("offset", 0, "page offset")
		_ = fs.Parse(args)

		v := url.Values{}
		setIf(v, "category", *category)
		setIf(v, "q", *q)
		setIf(v, "min_potency", *minPot)
		setIf(v, "max_potency", *maxPot)
		setIf(v, "sort", *sort)
		if *limit > 0 {
			v.Set("limit", fmt.Sprint(*limit))
		}
		if *offset > 0 {
			v.Set("offset", fmt.Sprint(*offset))
		}
		path := "/v1/catalog/strains/"
		if len(v) > 0 {
			path += "?" + v.Encode()
		}
		call(ctx, base, http.MethodGet, path, nil)

	case "units":
		strain := strainArg(args, "units")
		call(ctx, base, http.MethodGet, "/v1/catalog/strains/"+url.PathEscape(strain)+"/units", nil)

	case "tiers":
		strain := strainArg(args, "tiers")
		call(ctx, base, http.MethodGet, "/v1/catalog/strains/"+url.PathEscape(strain)+"/tiers", nil)

	case "add":
		fs := flag.NewFlagSet("add", flag.ExitOnError)
		unit := fs.String("unit", "", "unit id (uuid)")
		strain := fs.String("strain", "", "strain name")
		mass := fs.Float64("mass", 0, "tier mass in grams")
		_ = fs.Parse(args)
		if *unit == "" && *strain == "" {
			fmt.Fprintln(os.Stderr, "need -unit or -strain")
			os.Exit(1)
		}

		body := map[string]any{}
		if *unit != "" {
			body["unit_id"] = *unit
		} else {
			body["strain"] = *strain
			if *mass > 0 {
				body["mass_grams"] = *mass
			}
		}
		call(ctx, base, http.MethodPost, "/v1/selection/units", body)

	case "rm":
		fs := flag.NewFlagSet("rm", flag.ExitOnError)
		unit := fs.String("unit", "", "unit id (uuid)")
		_ = fs.Parse(args)
		if *unit == "" {
			fmt.Fprintln(os.Stderr, "need -unit")
			os.Exit(1)
		}
		call(ctx, base, http.MethodDelete, "/v1/selection/units/"+*unit, nil)

	case "clear":
		call(ctx, base, http.MethodPost, "/v1/selection/clear", nil)

	case "shortlist":
		strain := strainArg(args, "shortlist")
		call(ctx, base, http.MethodPost, "/v1/shortlist", map[string]any{"strain": strain})

	case "unshortlist":
		strain := strainArg(args, "unshortlist")
		call(ctx, base, http.MethodDelete, "/v1/shortlist/"+url.PathEscape(strain), nil)

	case "review":
		fs := flag.NewFlagSet("review", flag.ExitOnError)
		notes := fs.String("notes", "", "session notes")
		_ = fs.Parse(args)
		call(ctx, base, http.MethodPost, "/v1/review", map[string]any{"notes": *notes})

	case "back":
		call(ctx, base, http.MethodPost, "/v1/review/back", nil)

	case "authorize":
		call(ctx, base, http.MethodPost, "/v1/authorize", nil)

	case "ack":
		call(ctx, base, http.MethodPost, "/v1/partial-failure/ack", nil)

	case "reset":
		call(ctx, base, http.MethodPost, "/v1/reset", nil)

	case "watch":
		watch(*addr)

	default:
		usage()
	}
}

// ---- helpers ----

func strainArg(args []string, name string) string {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	strain := fs.String("strain", "", "strain name")
	_ = fs.Parse(args)
	if *strain == "" {
		fmt.Fprintln(os.Stderr, "need -strain")
		os.Exit(1)
	}
	return *strain
}

func setIf(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}

func call(ctx context.Context, base, method, path string, body any) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fail(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, rd)
	if err != nil {
		fail(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fail(err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		fail(err)
	}
	printBody(out)
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

func printBody(b []byte) {
	var v any
	if json.Unmarshal(b, &v) == nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return
	}
	fmt.Println(strings.TrimSpace(string(b)))
}

// watch streams workflow snapshots until interrupted.
func watch(addr string) {
	ctx := context.Background()
	conn, _, err := websocket.Dial(ctx, "ws://"+addr+"/ws", nil)
	if err != nil {
		fail(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			fail(err)
		}
		printBody(data)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
