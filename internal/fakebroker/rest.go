package fakebroker

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Thejuampi/realtime-client-go/wire"
)

type channelResponse struct {
	Channel string `json:"channel"`
}

type channelsResponse struct {
	Channels []channelResponse `json:"channels"`
}

type subscriptionsResponse struct {
	Devices []string `json:"devices"`
}

type restMessage struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

type publishRequest struct {
	Messages []restMessage `json:"messages"`
}

type publishResponse struct {
	IDs []string `json:"ids"`
}

type messageResult struct {
	Result struct {
		Message restMessage `json:"message"`
	} `json:"result"`
}

func (broker *Broker) registerRESTRoutes(r chi.Router) {
	r.Get(BasePattern+"/channels", broker.handleChannels)
	r.Get(BasePattern+"/channels/{channel}", broker.handleChannel)
	r.Get(BasePattern+"/channels/{channel}/messages", broker.handleChannelMessages)
	r.Post(BasePattern+"/channels/{channel}/messages", broker.handleChannelPublish)
	r.Get(BasePattern+"/channels/{channel}/subscriptions", broker.handleChannelSubscriptions)
}

// channelNamesLocked lists channels with stored messages or an attached session.
func (broker *Broker) channelNamesLocked() []string {
	known := make(map[string]bool)
	for name := range broker.messages {
		known[name] = true
	}
	for _, current := range broker.sessions {
		for name := range current.attached {
			known[name] = true
		}
	}
	names := make([]string, 0, len(known))
	for name := range known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (broker *Broker) handleChannels(w http.ResponseWriter, r *http.Request) {
	broker.lock.Lock()
	names := broker.channelNamesLocked()
	broker.lock.Unlock()

	response := channelsResponse{Channels: make([]channelResponse, 0, len(names))}
	for _, name := range names {
		response.Channels = append(response.Channels, channelResponse{Channel: name})
	}
	writeJSON(w, http.StatusOK, response)
}

func (broker *Broker) handleChannel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channel")

	broker.lock.Lock()
	names := broker.channelNamesLocked()
	broker.lock.Unlock()

	index := sort.SearchStrings(names, name)
	if index >= len(names) || names[index] != name {
		http.Error(w, "channel not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, channelResponse{Channel: name})
}

// handleChannelMessages streams one JSON result object per stored message.
func (broker *Broker) handleChannelMessages(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channel")
	start := uint64(0)
	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid start position", http.StatusBadRequest)
			return
		}
		start = parsed
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	encoder := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)

	for _, message := range broker.Messages(name, start) {
		data, err := transcode(message.Data, message.Encoding, wire.EncodingJSON)
		if err != nil {
			broker.logger.Printf("fakebroker: history message %d: %v", message.Sequence, err)
			continue
		}
		var result messageResult
		result.Result.Message = restMessage{ID: message.ID(), Name: message.Name, Data: data}
		if err := encoder.Encode(result); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (broker *Broker) handleChannelPublish(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channel")

	var request publishRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(request.Messages) == 0 {
		http.Error(w, "no messages", http.StatusBadRequest)
		return
	}

	response := publishResponse{IDs: make([]string, 0, len(request.Messages))}
	for _, message := range request.Messages {
		stored := broker.Publish(name, message.Name, message.Data, wire.EncodingJSON)
		response.IDs = append(response.IDs, stored.ID())
	}
	writeJSON(w, http.StatusOK, response)
}

func (broker *Broker) handleChannelSubscriptions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channel")

	broker.lock.Lock()
	devices := make([]string, 0)
	for socketID, connection := range broker.connections {
		if connection.session.subscribed[name] {
			devices = append(devices, socketID)
		}
	}
	broker.lock.Unlock()

	sort.Strings(devices)
	writeJSON(w, http.StatusOK, subscriptionsResponse{Devices: devices})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
