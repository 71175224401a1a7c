package awsx

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert"
	mctypes "github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"

	"github.com/civichealth/interviewrelay/internal/interview"
)

// MP3 output parameters expected by the receiving transcription teams.
const (
	mp3Bitrate    = 192000
	mp3Channels   = 2
	mp3SampleRate = 48000
)

// MediaConvertService submits audio-extraction jobs. Outputs are written to
// the audio bucket root named after the source file's stem, which is what
// lets a completed artifact be traced back to its originating record.
type MediaConvertService struct {
	client *mediaconvert.Client
	cfg    MediaConvertConfig
}

type MediaConvertConfig struct {
	Queue       string
	Role        string
	AudioBucket string
}

func NewMediaConvertService(client *mediaconvert.Client, cfg MediaConvertConfig) *MediaConvertService {
	return &MediaConvertService{client: client, cfg: cfg}
}

var _ interview.TranscodeService = (*MediaConvertService)(nil)

func (s *MediaConvertService) SubmitAudioExtraction(ctx context.Context, sourceBucket, sourceKey string) (string, error) {
	input := fmt.Sprintf("s3://%s/%s", sourceBucket, sourceKey)
	destination := fmt.Sprintf("s3://%s/", s.cfg.AudioBucket)

	out, err := s.client.CreateJob(ctx, &mediaconvert.CreateJobInput{
		Queue: aws.String(s.cfg.Queue),
		Role:  aws.String(s.cfg.Role),
		Settings: &mctypes.JobSettings{
			Inputs: []mctypes.Input{
				{
					FileInput: aws.String(input),
					AudioSelectors: map[string]mctypes.AudioSelector{
						"Audio Selector 1": {DefaultSelection: mctypes.AudioDefaultSelectionDefault},
					},
					TimecodeSource: mctypes.InputTimecodeSourceZerobased,
				},
			},
			OutputGroups: []mctypes.OutputGroup{
				{
					OutputGroupSettings: &mctypes.OutputGroupSettings{
						Type: mctypes.OutputGroupTypeFileGroupSettings,
						FileGroupSettings: &mctypes.FileGroupSettings{
							Destination: aws.String(destination),
						},
					},
					Outputs: []mctypes.Output{
						{
							ContainerSettings: &mctypes.ContainerSettings{
								Container: mctypes.ContainerTypeRaw,
							},
							AudioDescriptions: []mctypes.AudioDescription{
								{
									CodecSettings: &mctypes.AudioCodecSettings{
										Codec: mctypes.AudioCodecMp3,
										Mp3Settings: &mctypes.Mp3Settings{
											Bitrate:         aws.Int32(mp3Bitrate),
											Channels:        aws.Int32(mp3Channels),
											RateControlMode: mctypes.Mp3RateControlModeCbr,
											SampleRate:      aws.Int32(mp3SampleRate),
										},
									},
								},
							},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("submitting audio extraction for %s: %w", input, err)
	}
	return aws.ToString(out.Job.Id), nil
}
