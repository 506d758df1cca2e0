package dispatcher

import (
	"fmt"
	"net/http"

	"github.com/snowmerak/bundle.go/lib/framework"
)

// WelcomeSymbolicName is the bundle that serves the landing page.
const WelcomeSymbolicName = "bundle.go.welcome"

// WelcomePattern is where the landing page is mounted.
const WelcomePattern = "GET /{$}"

// WelcomeActivator publishes a landing page listing the installed bundles.
func WelcomeActivator() framework.Activator {
	return framework.ActivatorFunc(func(ctx *framework.BundleContext) error {
		fw := ctx.Framework()
		_, err := ctx.RegisterService(HandlerService, welcomeHandler(fw), framework.Properties{
			PatternProperty: WelcomePattern,
		})
		return err
	})
}

func welcomeHandler(fw *framework.Framework) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "bundle.go runtime %s\n\n", fw.UUID())
		for _, b := range fw.Bundles() {
			fmt.Fprintf(w, "[%d] %s %s (%s)\n", b.ID(), b.SymbolicName(), b.Version(), b.State())
		}
	})
}
