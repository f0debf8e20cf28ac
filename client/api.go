package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultHttpClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any]() (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R])
	apiCallback := NewApiCallback[R](func(result R, err error) {
		c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return apiCallback, c
}

type Api struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	byJwt string
}

func NewApi(apiUrl string) *Api {
	return NewApiWithContext(context.Background(), apiUrl)
}

func NewApiWithContext(ctx context.Context, apiUrl string) *Api {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &Api{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
	}
}

// this gets attached to api calls that need it
func (self *Api) SetByJwt(byJwt string) {
	self.byJwt = byJwt
}

func (self *Api) Close() {
	self.cancel()
}

type FetchGuildsCallback = apiCallback[*FetchGuildsResult]

type FetchGuildsResult struct {
	Guilds []*Guild `json:"guilds"`
}

func (self *Api) FetchGuilds(callback FetchGuildsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/guilds", self.apiUrl),
		self.byJwt,
		&FetchGuildsResult{},
		callback,
	)
}

type FetchDmChannelsCallback = apiCallback[*FetchDmChannelsResult]

type FetchDmChannelsResult struct {
	Channels []*Channel `json:"channels"`
}

func (self *Api) FetchDmChannels(callback FetchDmChannelsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/channels/dm", self.apiUrl),
		self.byJwt,
		&FetchDmChannelsResult{},
		callback,
	)
}

type FetchReadStateCallback = apiCallback[*FetchReadStateResult]

type FetchReadStateResult struct {
	Entries []*ReadStateEntry `json:"entries"`
}

func (self *Api) FetchReadState(callback FetchReadStateCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/read-state", self.apiUrl),
		self.byJwt,
		&FetchReadStateResult{},
		callback,
	)
}

type FetchRelationshipsCallback = apiCallback[*FetchRelationshipsResult]

type FetchRelationshipsResult struct {
	Relationships []*Relationship `json:"relationships"`
}

func (self *Api) FetchRelationships(callback FetchRelationshipsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/relationships", self.apiUrl),
		self.byJwt,
		&FetchRelationshipsResult{},
		callback,
	)
}

type FetchMutePrefsCallback = apiCallback[*FetchMutePrefsResult]

type FetchMutePrefsResult struct {
	MutedChannelIds []Id `json:"muted_channel_ids,omitempty"`
	MutedGuildIds   []Id `json:"muted_guild_ids,omitempty"`
}

func (self *Api) FetchMutePrefs(callback FetchMutePrefsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/preferences/mutes", self.apiUrl),
		self.byJwt,
		&FetchMutePrefsResult{},
		callback,
	)
}

type FetchNotificationsCallback = apiCallback[*FetchNotificationsResult]

type FetchNotificationsResult struct {
	Notifications []*Notification `json:"notifications"`
}

func (self *Api) FetchNotifications(callback FetchNotificationsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/notifications", self.apiUrl),
		self.byJwt,
		&FetchNotificationsResult{},
		callback,
	)
}

type FetchPermissionsCallback = apiCallback[*FetchPermissionsResult]

type FetchPermissionsResult struct {
	GuildId     Id            `json:"guild_id"`
	Permissions PermissionSet `json:"permissions"`
}

func (self *Api) FetchPermissions(guildId Id, callback FetchPermissionsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/guilds/%s/permissions", self.apiUrl, guildId),
		self.byJwt,
		&FetchPermissionsResult{},
		callback,
	)
}

type FetchMessagesCallback = apiCallback[*FetchMessagesResult]

type FetchMessagesResult struct {
	ChannelId Id         `json:"channel_id"`
	Messages  []*Message `json:"messages"`
}

// `before` pages backward. zero fetches the latest page
func (self *Api) FetchMessages(channelId Id, before Id, callback FetchMessagesCallback) {
	url := fmt.Sprintf("%s/channels/%s/messages", self.apiUrl, channelId)
	if !before.IsZero() {
		url = fmt.Sprintf("%s?before=%s", url, before)
	}
	go get(
		self.ctx,
		url,
		self.byJwt,
		&FetchMessagesResult{},
		callback,
	)
}

type AckChannelCallback = apiCallback[*AckChannelResult]

type AckChannelArgs struct {
	ChannelId  Id `json:"channel_id"`
	LastReadId Id `json:"last_read_id,omitempty"`
}

type AckChannelResult struct {
}

func (self *Api) AckChannel(ackChannel *AckChannelArgs, callback AckChannelCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/channels/%s/ack", self.apiUrl, ackChannel.ChannelId),
		ackChannel,
		self.byJwt,
		&AckChannelResult{},
		callback,
	)
}

type UpdateMutePrefCallback = apiCallback[*UpdateMutePrefResult]

type UpdateMutePrefArgs struct {
	ChannelId Id   `json:"channel_id,omitempty"`
	GuildId   Id   `json:"guild_id,omitempty"`
	Muted     bool `json:"muted"`
}

type UpdateMutePrefResult struct {
}

func (self *Api) UpdateMutePref(updateMutePref *UpdateMutePrefArgs, callback UpdateMutePrefCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/preferences/mutes", self.apiUrl),
		updateMutePref,
		self.byJwt,
		&UpdateMutePrefResult{},
		callback,
	)
}

func post[R any](ctx context.Context, url string, args any, byJwt string, result R, callback apiCallback[R]) (R, error) {
	var requestBodyBytes []byte
	if args == nil {
		requestBodyBytes = make([]byte, 0)
	} else {
		var err error
		requestBodyBytes, err = json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "text/json")

	if byJwt != "" {
		auth := fmt.Sprintf("Bearer %s", byJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultHttpClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}

func get[R any](ctx context.Context, url string, byJwt string, result R, callback apiCallback[R]) (R, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "text/json")

	if byJwt != "" {
		auth := fmt.Sprintf("Bearer %s", byJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultHttpClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}
