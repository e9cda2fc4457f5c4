// Package hxnet builds server-rendered pages out of cached components,
// using templ for markup and HTMX for interactivity.
//
// A component bundles markup, a scoped style, scripts, sub-routes and
// state. Pages compose components, and every component is built once per
// page: the first visit builds it, later visits reuse the result.
//
// # Components
//
// Components are described with a small builder and finished with a render
// function:
//
//	func Greeting(name string) hxnet.Buildable {
//	    return hxnet.WithState(hxnet.New("Greeting", ""), name).
//	        Style("& { color: teal; }").
//	        Render(func(ctx context.Context, s hxnet.State[string]) templ.Component {
//	            return greetingView(s.Value)
//	        })
//	}
//
// Pages render components with RenderComponent, or with C and Here from
// inside templ templates. Each call site supplies an identity that names the
// same logical component on every render of the page:
//
//	@hxnet.C("greeting", func() hxnet.Buildable { return Greeting("you") })
//
// # Static and dynamic components
//
// A component finished with Render is static unless proven otherwise. The
// first time it is built, its render function runs inside a temporary
// render. If nothing dynamic renders inside, the output is frozen and the
// render function never runs again for that page. If a descendant is
// dynamic, the component becomes dynamic too and re-renders on every view.
//
// RenderDynamic marks a component dynamic up front, for content that
// changes per request (counters, the current user, the time).
//
// Inside a temporary render dynamic components render empty, because their
// real output is only known per request.
//
// # Render engine
//
// An Engine coordinates one page render at a time: EnterPage starts it,
// RenderComponent is called for every component in the tree, and ExitPage
// returns the sub-routers, runners and global resources the render
// discovered. The engine travels in the context handed to render
// functions. No lock is held while user code runs, so component trees can
// nest arbitrarily deep.
//
// Misuse (rendering outside a page, exiting twice, entering while another
// render is active) is logged and degrades to an empty or diagnostic
// placeholder. It never panics.
//
// # Global resources
//
// Scripts and styles belong to the component declaration, not the instance.
// They are stored once in the GlobalStore and shipped once per page in the
// page's script.js and style.css.
//
// # Websites
//
// Website mounts pages, gives each its own engine, serves static files and
// optionally compresses responses:
//
//	site, err := hxnet.NewWebsite(hxnet.WithStaticDir("static"))
//	_, err = site.AddPage(ctx, "/", home)
//	err = site.Serve(ctx, ":8080")
package hxnet
