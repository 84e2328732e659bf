package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/api/resource"
)

var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		QuantityDecodeHook(),
		RetentionPolicyHookFunc(),
		DiscardPolicyHookFunc(),
		StorageTypeHookFunc(),
	)),
}

func QuantityDecodeHook() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != reflect.TypeOf(resource.Quantity{}) {
			return data, nil
		}
		return resource.ParseQuantity(fmt.Sprintf("%v", data))
	}
}

func RetentionPolicyHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(nats.LimitsPolicy) {
			return data, nil
		}
		return ParseRetentionPolicy(data.(string))
	}
}

func DiscardPolicyHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(nats.DiscardOld) {
			return data, nil
		}
		return ParseDiscardPolicy(data.(string))
	}
}

func StorageTypeHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(nats.FileStorage) {
			return data, nil
		}
		return ParseStorageType(data.(string))
	}
}

func ParseRetentionPolicy(s string) (nats.RetentionPolicy, error) {
	switch strings.ToLower(s) {
	case "", "limits":
		return nats.LimitsPolicy, nil
	case "interest":
		return nats.InterestPolicy, nil
	case "workqueue":
		return nats.WorkQueuePolicy, nil
	default:
		return nats.LimitsPolicy, errors.Errorf("unknown retention policy %q", s)
	}
}

func ParseDiscardPolicy(s string) (nats.DiscardPolicy, error) {
	switch strings.ToLower(s) {
	case "", "old":
		return nats.DiscardOld, nil
	case "new":
		return nats.DiscardNew, nil
	default:
		return nats.DiscardOld, errors.Errorf("unknown discard policy %q", s)
	}
}

func ParseStorageType(s string) (nats.StorageType, error) {
	switch strings.ToLower(s) {
	case "", "file":
		return nats.FileStorage, nil
	case "memory":
		return nats.MemoryStorage, nil
	default:
		return nats.FileStorage, errors.Errorf("unknown storage type %q", s)
	}
}
