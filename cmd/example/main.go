package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
	"github.com/trelliskit/trellis"
)

// Widget is the stored resource.
type Widget struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required,min=1,max=100"`
	Quantity  int       `json:"quantity" validate:"gte=0"`
	CreatedAt time.Time `json:"created_at"`
}

// WidgetInput is the create/update payload.
type WidgetInput struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

// WidgetList is the collection response.
type WidgetList struct {
	Widgets []Widget `json:"widgets"`
	Total   int      `json:"total"`
}

// widgetStore is a uuid-keyed in-memory store.
type widgetStore struct {
	mu      sync.RWMutex
	widgets map[string]Widget
}

func newWidgetStore() *widgetStore {
	return &widgetStore{widgets: make(map[string]Widget)}
}

func (s *widgetStore) Create(id, name string, quantity int) Widget {
	s.mu.Lock()
	defer s.mu.Unlock()
	widget := Widget{
		ID:        id,
		Name:      name,
		Quantity:  quantity,
		CreatedAt: time.Now().UTC(),
	}
	s.widgets[widget.ID] = widget
	return widget
}

func (s *widgetStore) Get(id string) (Widget, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	widget, ok := s.widgets[id]
	return widget, ok
}

func (s *widgetStore) Update(id, name string, quantity int) (Widget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	widget, ok := s.widgets[id]
	if !ok {
		return Widget{}, false
	}
	widget.Name = name
	widget.Quantity = quantity
	s.widgets[id] = widget
	return widget, true
}

func (s *widgetStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.widgets[id]; !ok {
		return false
	}
	delete(s.widgets, id)
	return true
}

func (s *widgetStore) List(limit int) WidgetList {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]Widget, 0, len(s.widgets))
	for _, widget := range s.widgets {
		all = append(all, widget)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	total := len(all)
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return WidgetList{Widgets: all, Total: total}
}

// widgetInput reads the validated body fields. The schema guarantees the
// shape, so the assertions here cannot miss.
func widgetInput(body map[string]any) (name string, quantity int) {
	name, _ = body["name"].(string)
	if q, ok := body["quantity"].(float64); ok {
		quantity = int(q)
	}
	return name, quantity
}

// newWidgetID generates ids for created widgets. Declared as a provider so
// handlers receive the id as a plain argument.
func newWidgetID(_ *http.Request, options map[string]any) (any, error) {
	prefix, _ := options["prefix"].(string)
	if prefix == "" {
		return uuid.NewString(), nil
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()), nil
}

func widgetEndpoints(store *widgetStore) *trellis.Group {
	create := trellis.NewEndpoint("create-widget", "POST", "/",
		func(body map[string]any, id string) (*trellis.Result, error) {
			name, quantity := widgetInput(body)
			widget := store.Create(id, name, quantity)
			return trellis.NewResult().
				Status(http.StatusCreated).
				Header("Location", "/widgets/"+widget.ID).
				Body(widget), nil
		},
	).WithSummary("Create a widget").
		WithTags("widgets").
		WithRequestBody(true, trellis.SchemaOf[WidgetInput]()).
		WithResponse(http.StatusCreated, "Widget created", trellis.SchemaOf[Widget]()).
		WithArgs(trellis.Body(), trellis.Provider(newWidgetID, map[string]any{"prefix": "wgt"}))

	list := trellis.NewEndpoint("list-widgets", "GET", "/",
		func(limit int) (WidgetList, error) {
			return store.List(limit), nil
		},
	).WithSummary("List widgets").
		WithTags("widgets").
		WithQueryParam("limit", false, openapi3.NewIntegerSchema().WithMin(1).WithMax(100).WithDefault(10)).
		WithResponse(http.StatusOK, "Widget collection", trellis.SchemaOf[WidgetList]()).
		WithArgs(trellis.QueryParam("limit"))

	get := trellis.NewEndpoint("get-widget", "GET", "/:id",
		func(id string) (Widget, error) {
			widget, ok := store.Get(id)
			if !ok {
				return Widget{}, trellis.ErrNotFound.WithMessage("widget %q not found", id)
			}
			return widget, nil
		},
	).WithSummary("Get a widget by id").
		WithTags("widgets").
		WithPathParam("id", openapi3.NewStringSchema()).
		WithResponse(http.StatusOK, "The widget", trellis.SchemaOf[Widget]()).
		WithArgs(trellis.PathParam("id"))

	update := trellis.NewEndpoint("update-widget", "PUT", "/:id",
		func(id string, body map[string]any) (Widget, error) {
			name, quantity := widgetInput(body)
			widget, ok := store.Update(id, name, quantity)
			if !ok {
				return Widget{}, trellis.ErrNotFound.WithMessage("widget %q not found", id)
			}
			return widget, nil
		},
	).WithSummary("Replace a widget").
		WithTags("widgets").
		WithPathParam("id", openapi3.NewStringSchema()).
		WithRequestBody(true, trellis.SchemaOf[WidgetInput]()).
		WithResponse(http.StatusOK, "The updated widget", trellis.SchemaOf[Widget]()).
		WithArgs(trellis.PathParam("id"), trellis.Body())

	del := trellis.NewEndpoint("delete-widget", "DELETE", "/:id",
		func(id string) (*trellis.Result, error) {
			if !store.Delete(id) {
				return nil, trellis.ErrNotFound.WithMessage("widget %q not found", id)
			}
			return trellis.NewResult().Status(http.StatusNoContent), nil
		},
	).WithSummary("Delete a widget").
		WithTags("widgets").
		WithPathParam("id", openapi3.NewStringSchema()).
		WithArgs(trellis.PathParam("id"))

	watch := trellis.NewEndpoint("watch-widgets", "GET", "/watch",
		func(w http.ResponseWriter, r *http.Request) (*trellis.Result, error) {
			stream, err := trellis.NewStream[WidgetList](w, r)
			if err != nil {
				return nil, err
			}

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-stream.Done():
					return trellis.NewResult().Handled(), nil
				case <-ticker.C:
					if err := stream.Send(store.List(10)); err != nil {
						return trellis.NewResult().Handled(), nil
					}
				}
			}
		},
	).WithSummary("Stream widget totals as server-sent events").
		WithTags("widgets").
		WithArgs(trellis.ResponseWriter(), trellis.Request())

	return trellis.NewGroup("/widgets").Add(create, list, get, update, del, watch)
}

func main() {
	port := 8081
	if raw := os.Getenv("PORT"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			log.Fatalf("[Main] Invalid PORT %q: %v", raw, err)
		}
		port = parsed
	}

	config := trellis.DefaultConfig().
		WithPort(port)

	engine := trellis.NewEngine(config)

	store := newWidgetStore()
	if err := engine.Mount(widgetEndpoints(store)); err != nil {
		log.Fatalf("[Main] Failed to mount widgets: %v", err)
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		fmt.Printf("[Main] Listening on :%d (docs at /docs), press Ctrl+C to shutdown\n", port)
		serverErrors <- engine.Start() // This blocks until server stops
	}()

	// Wait for interrupt signal or server error
	select {
	case err := <-serverErrors:
		log.Fatalf("[Main] Server error: %v", err)
	case sig := <-sigChan:
		fmt.Printf("\n[Main] Received signal: %v\n", sig)

		// Create shutdown context with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := engine.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Main] Shutdown error: %v", err)
		}

		fmt.Println("[Main] Shutdown complete")
	}
}
