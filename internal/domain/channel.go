package domain

// Channel представляет канал распространения релизов
type Channel string

const (
	ChannelNightly Channel = "nightly"
	ChannelBeta    Channel = "beta"
	ChannelStable  Channel = "stable"
	ChannelLTS     Channel = "lts"
	ChannelHotfix  Channel = "hotfix"
)

// ChannelProperties описывает поведение канала: ранг стабильности
// (больше = стабильнее), автообновление и необходимость одобрения
// при публикации в канал.
type ChannelProperties struct {
	StabilityRank    int  `json:"stability_rank"`
	AutoUpdate       bool `json:"auto_update"`
	RequiresApproval bool `json:"requires_approval"`
}

// Закрытая таблица свойств каналов. Новые каналы добавляются только здесь.
var channelProperties = map[Channel]ChannelProperties{
	ChannelNightly: {StabilityRank: 0, AutoUpdate: false, RequiresApproval: false},
	ChannelBeta:    {StabilityRank: 1, AutoUpdate: false, RequiresApproval: false},
	ChannelStable:  {StabilityRank: 2, AutoUpdate: true, RequiresApproval: true},
	ChannelLTS:     {StabilityRank: 3, AutoUpdate: true, RequiresApproval: true},
	ChannelHotfix:  {StabilityRank: 2, AutoUpdate: true, RequiresApproval: true},
}

// Valid проверяет, что канал известен движку
func (c Channel) Valid() bool {
	_, ok := channelProperties[c]
	return ok
}

// Properties возвращает свойства канала
func (c Channel) Properties() (ChannelProperties, bool) {
	p, ok := channelProperties[c]
	return p, ok
}

// AllChannels возвращает список всех известных каналов
func AllChannels() []Channel {
	return []Channel{ChannelNightly, ChannelBeta, ChannelStable, ChannelLTS, ChannelHotfix}
}
