// Command segallocd boots a segalloc.Engine over a reserved arena and
// serves its diagnostics over HTTP. It is grounded on the teacher's
// main.go: the same flag/log setup and fasthttp.ListenAndServe
// wiring, retargeted from the social-graph API to the allocator's own
// stats/check endpoints.
package main

import (
	"flag"
	"log"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"

	"github.com/mvyskoc/segalloc/arena"
	"github.com/mvyskoc/segalloc/segalloc"
)

var reserve = flag.Uint("reserve", 256<<20, "bytes of address space to reserve for the arena")
var port = flag.String("port", "8080", "port to listen")
var verbose = flag.Bool("verbose", false, "verbose /check output")

var engine *segalloc.Locked

func main() {
	log.SetFlags(log.Lmicroseconds | log.Lshortfile)
	flag.Parse()

	a, err := arena.New(uint32(*reserve))
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	e := segalloc.New(a)
	e.Init()
	engine = segalloc.NewLocked(e)

	log.Printf("segallocd listening on :%s (reserve=%d bytes)", *port, *reserve)
	if err := fasthttp.ListenAndServe(":"+*port, handler); err != nil {
		log.Fatal(err)
	}
}

func handler(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}
	switch string(ctx.Path()) {
	case "/check":
		report := engine.Check(*verbose)
		body, err := jsoniter.Marshal(report)
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	case "/stats":
		report := engine.Check(false)
		ctx.SetContentType("text/plain")
		ctx.SetBodyString(report.WriteText())
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}
